package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ignite/bulkmail/internal/esp"
)

// LocalArchive writes pages under a directory on disk.
type LocalArchive struct {
	dir string
}

// NewLocalArchive creates the directory if needed.
func NewLocalArchive(dir string) (*LocalArchive, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalArchive{dir: dir}, nil
}

func (a *LocalArchive) Archive(_ context.Context, provider string, at time.Time, events []esp.RawEvent) error {
	if len(events) == 0 {
		return nil
	}
	data, err := encodeLines(events)
	if err != nil {
		return err
	}
	p := filepath.Join(a.dir, filepath.FromSlash(ObjectKey("", provider, at)))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("writing archive file: %w", err)
	}
	return nil
}
