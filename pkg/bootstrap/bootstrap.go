// Package bootstrap implements optional host framework bootstrap:
// best-effort, auto-detected by marker files, non-fatal on failure. It
// exposes an open extension point rather than hardcoding against one
// framework, since the Go ecosystem has no single dominant "host
// framework" to target.
package bootstrap

import (
	"os"
	"path/filepath"

	"github.com/cuemby/deferrun/pkg/log"
)

// Detector recognizes one host framework by the presence of a marker
// file or directory under a project root, and performs whatever setup
// that framework needs before user code runs in a worker.
type Detector interface {
	// Name identifies the framework in log messages.
	Name() string
	// Detect reports whether this framework appears to be in use at root.
	Detect(root string) bool
	// Bootstrap performs framework-specific setup. A returned error is
	// logged, never fatal to the worker.
	Bootstrap(root string) error
}

var (
	detectors []Detector
)

// Register adds a Detector to the process-wide list Run consults. Host
// applications call this from an init() to extend auto-detection.
func Register(d Detector) {
	detectors = append(detectors, d)
}

// Run tries every registered Detector against root in registration
// order, running the Bootstrap of each one that Detects true. Failures
// are logged and skipped, never propagated: a misconfigured or missing
// host framework should never fail the task that triggered bootstrap.
func Run(root string) {
	logger := log.WithComponent("bootstrap")
	for _, d := range detectors {
		if !d.Detect(root) {
			continue
		}
		if err := d.Bootstrap(root); err != nil {
			logger.Warn().Str("framework", d.Name()).Err(err).Msg("framework bootstrap failed, continuing without it")
			continue
		}
		logger.Debug().Str("framework", d.Name()).Msg("framework bootstrapped")
	}
}

// markerDetector is the common shape most Detectors take: presence of a
// named file under root.
type markerDetector struct {
	name   string
	marker string
	setup  func(root string) error
}

// NewMarkerDetector returns a Detector that fires when "<root>/marker"
// exists, then runs setup. setup may be nil for frameworks that need no
// action beyond being recognized (e.g. recording a log line).
func NewMarkerDetector(name, marker string, setup func(root string) error) Detector {
	return &markerDetector{name: name, marker: marker, setup: setup}
}

func (d *markerDetector) Name() string { return d.name }

func (d *markerDetector) Detect(root string) bool {
	_, err := os.Stat(filepath.Join(root, d.marker))
	return err == nil
}

func (d *markerDetector) Bootstrap(root string) error {
	if d.setup == nil {
		return nil
	}
	return d.setup(root)
}
