package matchjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"opsmemory/internal/logger"
	"opsmemory/pkg/models"
)

// Writer appends pattern matches to a JSON lines file.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter opens path for appending, creating parent directories.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	logger.Infof("Pattern match JSON writer initialized: %s", path)
	return &Writer{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// WriteMatches writes one line per match.
func (w *Writer) WriteMatches(matches []models.PatternMatch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range matches {
		if err := w.encoder.Encode(&matches[i]); err != nil {
			return fmt.Errorf("failed to encode pattern match: %w", err)
		}
	}
	return nil
}

// Close closes the output file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
