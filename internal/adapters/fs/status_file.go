package fs

import (
	"context"
	"path/filepath"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// StatusFileRepository implements ports.StatusRepository using a JSON file.
type StatusFileRepository struct {
	dir  string
	path string
}

// NewStatusFileRepository creates a repository storing the namespace's
// sync status in dir.
func NewStatusFileRepository(dir string, ns domain.Namespace) *StatusFileRepository {
	return &StatusFileRepository{
		dir:  dir,
		path: filepath.Join(dir, fileName(ns.StatusKey())),
	}
}

// Load retrieves the last saved status from disk.
// Returns an idle status and nil error if no status file exists.
func (r *StatusFileRepository) Load(ctx context.Context) (domain.SyncStatus, error) {
	var st domain.SyncStatus
	if _, err := readJSON(r.path, &st); err != nil {
		return domain.SyncStatus{}, domain.Storage("load status", err)
	}
	return st, nil
}

// Save persists the status atomically.
func (r *StatusFileRepository) Save(ctx context.Context, st domain.SyncStatus) error {
	return domain.Storage("save status", writeJSON(r.dir, r.path, st))
}

// Path returns the full path to the status file.
func (r *StatusFileRepository) Path() string {
	return r.path
}
