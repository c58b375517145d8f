// Package sessionlog implements the per-session plain-text log file: one
// file per session under <config-dir>/logs/, timestamped lines, first and
// last lines recording start and end.
package sessionlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log is an open per-session log file. Safe for concurrent Line calls.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	start    time.Time
	nowFn    func() time.Time
	Path     string
}

// Open creates <configDir>/logs/<iso-timestamp-with-colons-and-dots-dashed>.log
// and writes the session-start line.
func Open(configDir string) (*Log, error) {
	return openWithClock(configDir, time.Now)
}

func openWithClock(configDir string, nowFn func() time.Time) (*Log, error) {
	logsDir := filepath.Join(configDir, "logs")
	if err := os.MkdirAll(logsDir, 0o700); err != nil {
		return nil, fmt.Errorf("sessionlog: mkdir: %w", err)
	}

	start := nowFn()
	name := sanitizeTimestamp(start.Format(time.RFC3339Nano)) + ".log"
	path := filepath.Join(logsDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("sessionlog: create: %w", err)
	}

	l := &Log{file: f, start: start, nowFn: nowFn, Path: path}
	l.writeLine(start, "session started")
	return l, nil
}

// sanitizeTimestamp replaces ':' and '.' with '-' so the timestamp is a
// valid filename on every platform.
func sanitizeTimestamp(ts string) string {
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return ts
}

// Line appends one timestamped entry.
func (l *Log) Line(message string) {
	l.writeLine(l.nowFn(), message)
}

func (l *Log) writeLine(ts time.Time, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s\n", ts.Format(time.RFC3339Nano), message)
}

// Close writes the session-end line with duration and closes the file.
func (l *Log) Close() error {
	end := l.nowFn()
	l.writeLine(end, fmt.Sprintf("session ended (duration %s)", end.Sub(l.start)))
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
