package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FileWriter appends lines in the "[YYYY-MM-DD HH:MM:SS] [LEVEL] [TASK_OR_SYSTEM] message"
// format used for background_tasks.log, under an exclusive advisory
// lock so every process sharing the log directory can append safely.
// It implements zerolog.LevelWriter so it can sit alongside the console
// writer in a zerolog.MultiLevelWriter.
type FileWriter struct {
	path string
}

// NewFileWriter returns a writer for the log file at path. It does not
// touch the file; each Append opens (creating if necessary) and closes it.
func NewFileWriter(path string) *FileWriter {
	return &FileWriter{path: path}
}

// Append writes one line, taking and releasing the lock around the write.
func (w *FileWriter) Append(level, scope, message string) error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if err := lockExclusive(f); err != nil {
		return fmt.Errorf("lock log file: %w", err)
	}
	defer unlock(f)

	line := fmt.Sprintf("[%s] [%s] [%s] %s\n",
		time.Now().Format("2006-01-02 15:04:05"), level, scope, message)
	_, err = f.WriteString(line)
	return err
}

// WriteLevel implements zerolog.LevelWriter. p is the raw JSON record
// zerolog produces for one event; WriteLevel pulls the scope
// (task_id, falling back to component, falling back to "system") and
// the message back out of it and re-renders the line through Append.
func (w *FileWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	scope := "system"
	message := strings.TrimRight(string(p), "\n")

	var fields map[string]any
	if err := json.Unmarshal(p, &fields); err == nil {
		if v, ok := fields["task_id"].(string); ok && v != "" {
			scope = v
		} else if v, ok := fields["component"].(string); ok && v != "" {
			scope = v
		}
		if v, ok := fields["message"].(string); ok {
			message = v
		}
	}

	if err := w.Append(strings.ToUpper(level.String()), scope, message); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Write implements io.Writer for callers that don't go through
// zerolog.MultiLevelWriter's level-aware dispatch.
func (w *FileWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// logLinePattern mirrors the format Append writes; lines that fail to
// match are ignored by Tail.
var logLinePattern = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] \[(\w+)\] \[([^\]]+)\] (.*)$`)

// LogLine is one parsed entry from background_tasks.log.
type LogLine struct {
	Timestamp string
	Level     string
	Scope     string
	Message   string
}

// Tail returns the last n lines of the log file that match the expected
// pattern, in file order. Unparseable lines are silently skipped.
func Tail(path string, n int) ([]LogLine, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []LogLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := logLinePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		all = append(all, LogLine{Timestamp: m[1], Level: m[2], Scope: m[3], Message: m[4]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}
