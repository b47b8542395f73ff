package fs

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/bft-labs/fieldsync/internal/domain"
)

// Usage reports the on-disk footprint of one namespace's documents.
type Usage struct {
	dir         string
	names       map[string]bool
	cachePrefix string
}

// NewUsage returns a ports.UsageReporter for the namespace's files in dir.
func NewUsage(dir string, ns domain.Namespace) *Usage {
	queue := fileName(ns.OperationsKey())
	return &Usage{
		dir: dir,
		names: map[string]bool{
			queue:                    true,
			queue + ".lock":          true,
			fileName(ns.StatusKey()): true,
		},
		cachePrefix: strings.ReplaceAll(ns.CachePrefix(), ":", "."),
	}
}

// DiskUsage sums the sizes of the queue, status and cached snapshot files.
// A directory that does not exist yet uses nothing.
func (u *Usage) DiskUsage(ctx context.Context) (int64, error) {
	entries, err := os.ReadDir(u.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, domain.Storage("usage", err)
	}

	var total int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(u.names[name] || strings.HasPrefix(name, u.cachePrefix)) {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, domain.Storage("usage", err)
		}
		total += info.Size()
	}
	return total, nil
}
