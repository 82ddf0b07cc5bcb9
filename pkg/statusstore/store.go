// Package statusstore implements a filesystem-backed StatusStore: a
// directory of "<taskId>.status" files that is the single
// cross-process source of truth for a task's lifecycle. Every write is
// a full, atomic replacement (temp file + rename) so a reader never
// observes a half-written record; a record that still fails to parse
// is reported as CORRUPTED rather than silently discarded.
package statusstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/deferrun/pkg/clock"
	"github.com/cuemby/deferrun/pkg/events"
	"github.com/cuemby/deferrun/pkg/log"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const statusSuffix = ".status"

// Store is the filesystem-backed status channel. It is safe for
// concurrent use by multiple goroutines within one process; across
// processes, safety comes from the write discipline (temp file +
// rename), not from any lock.
type Store struct {
	dir    string
	clk    clock.Clock
	broker *events.Broker
	notify notifier
}

// New creates (idempotently) dir and returns a Store over it. An
// fsnotify-backed notifier is used when the platform watcher can be
// constructed; otherwise Store transparently falls back to polling,
// since file-watch availability varies by OS and correctness must not
// depend on which backend is active.
func New(dir string, clk clock.Clock) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create status directory: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()

	s := &Store{dir: dir, clk: clk, broker: broker}

	if n, err := newFsnotifyNotifier(dir, broker); err == nil {
		s.notify = n
	} else {
		log.WithComponent("statusstore").Warn().Err(err).Msg("fsnotify unavailable, falling back to polling watch")
		s.notify = newPollingNotifier(dir, clk, broker)
	}

	return s, nil
}

// Close releases the notifier and broker goroutines.
func (s *Store) Close() error {
	s.broker.Stop()
	return s.notify.close()
}

func (s *Store) path(taskID types.TaskID) string {
	return filepath.Join(s.dir, string(taskID)+statusSuffix)
}

// CreateInitial writes the PENDING record a task starts life with.
func (s *Store) CreateInitial(taskID types.TaskID, callbackType types.CallableKind, contextSize int) (*types.TaskStatus, error) {
	now := s.clk.Now()
	status := &types.TaskStatus{
		TaskID:       taskID,
		Status:       types.StatusPending,
		Timestamp:    float64(now.Unix()),
		CreatedAt:    now.Format(time.RFC3339),
		UpdatedAt:    now.Format(time.RFC3339),
		CallbackType: callbackType,
		ContextSize:  contextSize,
	}
	if err := s.write(status); err != nil {
		return nil, err
	}
	return status, nil
}

// Mutate is applied to the in-memory record before Update persists it;
// it carries forward whatever fields a worker wants to change alongside
// the required status/message transition.
type Mutate func(*types.TaskStatus)

// Update overwrites taskID's status file atomically, applying mutate
// (if non-nil) on top of the requested status/message.
func (s *Store) Update(taskID types.TaskID, status types.Status, message string, mutate Mutate) error {
	current, err := s.Read(taskID)
	if err != nil || current.Status.Synthetic() {
		current = &types.TaskStatus{TaskID: taskID, CreatedAt: s.clk.Now().Format(time.RFC3339)}
	}

	current.Status = status
	current.Message = message
	now := s.clk.Now()
	current.Timestamp = float64(now.Unix())
	current.UpdatedAt = now.Format(time.RFC3339)

	if mutate != nil {
		mutate(current)
	}

	return s.write(current)
}

// write performs the atomic temp-file-then-rename update and publishes
// a watch notification for subscribers of taskID.
func (s *Store) write(status *types.TaskStatus) error {
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status %s: %w", status.TaskID, err)
	}

	final := s.path(status.TaskID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write status %s: %w", status.TaskID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename status %s: %w", status.TaskID, err)
	}

	eventType := events.EventTaskStatusChanged
	switch status.Status {
	case types.StatusCompleted:
		eventType = events.EventTaskCompleted
	case types.StatusError, types.StatusSpawnError:
		eventType = events.EventTaskFailed
	}
	s.broker.Publish(&events.Event{ID: status.TaskID, Type: eventType, Status: status.Status})
	return nil
}

// Read returns taskID's current status, or a synthetic NOT_FOUND /
// CORRUPTED record when the file is missing or unparseable. It never
// returns a half-parsed
// TaskStatus alongside a nil error.
func (s *Store) Read(taskID types.TaskID) (*types.TaskStatus, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return &types.TaskStatus{TaskID: taskID, Status: types.StatusNotFound}, nil
		}
		return nil, fmt.Errorf("read status %s: %w", taskID, err)
	}

	var status types.TaskStatus
	if err := yaml.Unmarshal(data, &status); err != nil {
		return &types.TaskStatus{TaskID: taskID, Status: types.StatusCorrupted, Message: err.Error()}, nil
	}
	status.TaskID = taskID
	return &status, nil
}

// List returns every status file's record, sorted by Timestamp
// descending (most recently updated first).
func (s *Store) List() ([]*types.TaskStatus, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list status directory: %w", err)
	}

	var out []*types.TaskStatus
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), statusSuffix) {
			continue
		}
		taskID := types.TaskID(strings.TrimSuffix(entry.Name(), statusSuffix))
		status, err := s.Read(taskID)
		if err != nil {
			continue
		}
		out = append(out, status)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// Cleanup removes status files whose status is terminal and whose mtime
// is older than maxAge; RUNNING/PENDING records are never removed. It
// also removes orphaned worker script files older than maxAge from
// scriptsDir. Returns the count of files removed, plus a non-nil error
// aggregating every individual removal that failed (a locked or
// already-gone file does not stop the rest of the sweep). Idempotent: a
// second call with no intervening activity removes nothing.
func (s *Store) Cleanup(maxAge time.Duration, scriptsDir string) (int, error) {
	removed := 0
	cutoff := s.clk.Now().Add(-maxAge)
	var errs *multierror.Error

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list status directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), statusSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		taskID := types.TaskID(strings.TrimSuffix(entry.Name(), statusSuffix))
		status, err := s.Read(taskID)
		if err != nil || !status.Status.Terminal() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("remove status %s: %w", taskID, err))
			continue
		}
		removed++
	}

	if scriptsDir != "" {
		if scriptEntries, err := os.ReadDir(scriptsDir); err == nil {
			for _, entry := range scriptEntries {
				if entry.IsDir() {
					continue
				}
				info, err := entry.Info()
				if err != nil || info.ModTime().After(cutoff) {
					continue
				}
				if err := os.Remove(filepath.Join(scriptsDir, entry.Name())); err != nil {
					errs = multierror.Append(errs, fmt.Errorf("remove script %s: %w", entry.Name(), err))
					continue
				}
				removed++
			}
		}
	}

	return removed, errs.ErrorOrNil()
}

// Watch delivers a notification whenever taskID's status file changes,
// debounced to at most one notification per ~100ms. The returned cancel
// func releases the subscription; it is safe to call more than once.
func (s *Store) Watch(taskID types.TaskID) (<-chan struct{}, func(), error) {
	ch, cancel := s.notify.subscribe(taskID)
	return ch, cancel, nil
}
