// Package workerscript generates the self-contained Go source file that
// pkg/spawner launches as a detached worker. The generated program
// hydrates one callback, runs it, and writes its status to disk,
// generated from an embedded text/template the same way generated
// config text is produced elsewhere in this codebase.
package workerscript

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/cuemby/deferrun/pkg/types"
)

//go:embed templates/worker.go.tmpl
var templatesFS embed.FS

var workerTemplate = template.Must(template.ParseFS(templatesFS, "templates/worker.go.tmpl"))

type templateData struct {
	TaskID             types.TaskID
	Kind               types.CallableKind
	Name               string
	ReceiverStateJSON  string
	Unverified         bool
	ContextJSON        string
}

// Generate renders the worker source for taskID/callable/ctx and writes
// it to "<scriptsDir>/<taskId>.go", returning the path written.
func Generate(scriptsDir string, taskID types.TaskID, callable types.Callable, ctx types.Context) (string, error) {
	if err := os.MkdirAll(scriptsDir, 0o755); err != nil {
		return "", fmt.Errorf("create scripts directory: %w", err)
	}

	var contextJSON string
	if len(ctx) > 0 {
		data, err := json.Marshal(ctx)
		if err != nil {
			return "", fmt.Errorf("marshal context: %w", err)
		}
		contextJSON = string(data)
	}

	data := templateData{
		TaskID:            taskID,
		Kind:              callable.Kind,
		Name:              callable.Name,
		ReceiverStateJSON: string(callable.ReceiverState),
		Unverified:        callable.Unverified,
		ContextJSON:       contextJSON,
	}

	path := filepath.Join(scriptsDir, string(taskID)+".go")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create worker source %s: %w", path, err)
	}
	defer f.Close()

	if err := workerTemplate.Execute(f, data); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("render worker template: %w", err)
	}

	return path, nil
}
