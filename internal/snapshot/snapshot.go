// Package snapshot writes the raw fetched receipt batch to disk for audit.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Swed0ua/Integration-SK-Surve/internal/domain"
)

// Writer stores one file per run under Dir. An empty Dir disables it.
type Writer struct {
	Dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// FileName returns the snapshot file name for a run.
func FileName(runID string) string {
	return fmt.Sprintf("receipts-%s.json", runID)
}

// Write stores receipts exactly as received, as an indented JSON array, and
// returns the file path. It returns "" when the writer is disabled.
func (w *Writer) Write(runID string, receipts []domain.SourceReceipt) (string, error) {
	if w == nil || w.Dir == "" {
		return "", nil
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	raw := make([]json.RawMessage, 0, len(receipts))
	for i := range receipts {
		if len(receipts[i].Raw) > 0 {
			raw = append(raw, receipts[i].Raw)
			continue
		}
		b, err := json.Marshal(receipts[i])
		if err != nil {
			return "", fmt.Errorf("marshal receipt %s: %w", receipts[i].ID, err)
		}
		raw = append(raw, b)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(w.Dir, FileName(runID))
	tmp, err := os.CreateTemp(w.Dir, ".receipts-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename snapshot: %w", err)
	}
	return path, nil
}
