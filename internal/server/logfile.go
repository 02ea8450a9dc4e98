// Package server writes session and security events to per-user, per-day
// plain-text log files.
package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log file names reserved for non-user events.
const (
	logNameSystem   = "system"
	logNameSecurity = "security"
)

// LogDir appends timestamped text lines to files named <name>_<date>.log in a
// fixed directory. One file per user (or the system/security buckets) per
// day. Write failures are logged and dropped; audit logging never fails a
// request.
type LogDir struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// NewLogDir creates the log directory if needed and returns a writer for it.
func NewLogDir(dir string) (*LogDir, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	return &LogDir{dir: dir, now: time.Now}, nil
}

// Log appends a timestamped line to the named log file for today.
func (l *LogDir) Log(name, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	filename := fmt.Sprintf("%s_%s.log", sanitizeLogName(name), now.Format("2006-01-02"))
	line := fmt.Sprintf("[%s] %s\n", now.Format(time.RFC3339), fmt.Sprintf(format, args...))

	path := filepath.Join(l.dir, filename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		log.Printf("Error opening log file %s: %v", path, err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Error closing log file %s: %v", path, err)
		}
	}()

	if _, err := f.WriteString(line); err != nil {
		log.Printf("Error writing log file %s: %v", path, err)
	}
}

// sanitizeLogName keeps log file names flat even if a username carries path
// characters.
func sanitizeLogName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return logNameSystem
	}
	return name
}
