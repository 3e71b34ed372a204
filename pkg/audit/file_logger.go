package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileLogger appends audit events as JSON lines to a file, rotating by size.
type FileLogger struct {
	basePath string
	maxSize  int64
	maxFiles int

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Directory for audit logs
	MaxSize  int64  // Max file size in bytes before rotation (default 50MB)
	MaxFiles int    // Rotated files to keep (default 5)
}

// NewFileLogger creates a file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		basePath: config.BasePath,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if logger.maxSize <= 0 {
		logger.maxSize = 50 * 1024 * 1024
	}
	if logger.maxFiles <= 0 {
		logger.maxFiles = 5
	}

	if err := logger.openLogFile(); err != nil {
		return nil, err
	}
	return logger, nil
}

// Record implements Recorder. Write errors are swallowed; auditing must not
// fail authentication.
func (l *FileLogger) Record(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.encoder == nil {
		return
	}
	if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
		l.rotate()
	}
	_ = l.encoder.Encode(event)
}

// Close flushes and closes the current log file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.encoder = nil
	return err
}

func (l *FileLogger) currentPath() string {
	return filepath.Join(l.basePath, "sso-audit.log")
}

func (l *FileLogger) openLogFile() error {
	file, err := os.OpenFile(l.currentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

func (l *FileLogger) rotate() {
	l.file.Close()
	rotated := fmt.Sprintf("%s.%s", l.currentPath(), time.Now().UTC().Format("20060102T150405"))
	os.Rename(l.currentPath(), rotated)
	l.pruneRotated()
	if err := l.openLogFile(); err != nil {
		l.file = nil
		l.encoder = nil
	}
}

func (l *FileLogger) pruneRotated() {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return
	}
	var rotated []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "sso-audit.log.") {
			rotated = append(rotated, entry.Name())
		}
	}
	if len(rotated) <= l.maxFiles {
		return
	}
	sort.Strings(rotated)
	for _, name := range rotated[:len(rotated)-l.maxFiles] {
		os.Remove(filepath.Join(l.basePath, name))
	}
}
