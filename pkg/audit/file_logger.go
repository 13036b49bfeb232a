package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileLogger writes audit events as newline-delimited JSON with size-based
// rotation.
type FileLogger struct {
	basePath string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	written int64
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Directory for audit logs
	MaxSize  int64  // Max file size in bytes before rotation (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}

	l := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if l.maxSize == 0 {
		l.maxSize = 100 * 1024 * 1024
	}
	if l.maxFiles == 0 {
		l.maxFiles = 10
	}

	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) currentPath() string {
	return filepath.Join(l.basePath, "audit.log")
}

func (l *FileLogger) open() error {
	file, err := os.OpenFile(l.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stating audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	l.written = info.Size()
	return nil
}

// Log writes the event as one JSON line, rotating the file when it exceeds
// the configured size.
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit logger closed")
	}

	if l.written >= l.maxSize {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	data, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("encoding audit event: %w", err)
	}
	n, err := l.file.Write(append(data, '\n'))
	l.written += int64(n)
	if err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// rotate renames the current file with a timestamp suffix and opens a fresh
// one. Caller holds the mutex.
func (l *FileLogger) rotate() error {
	l.file.Close()
	l.file = nil

	timestamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", timestamp))
	if err := os.Rename(l.currentPath(), rotated); err != nil {
		return fmt.Errorf("rotating audit log: %w", err)
	}

	if err := l.cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to cleanup old audit logs: %v\n", err)
	}

	return l.open()
}

// cleanup removes the oldest rotated files beyond maxFiles.
func (l *FileLogger) cleanup() error {
	matches, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil {
		return err
	}
	if len(matches) <= l.maxFiles {
		return nil
	}
	sort.Strings(matches) // timestamp suffix sorts oldest first
	for _, path := range matches[:len(matches)-l.maxFiles] {
		if err := os.Remove(path); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes the current log file
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
