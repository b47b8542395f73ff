package connectivity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/fieldsync/internal/ports"
)

// FileSignal turns a marker file into a connectivity source: the backend is
// considered reachable while the file exists. OS network hooks (NetworkManager
// dispatcher scripts, ifup.d) can touch or remove it to push transitions.
type FileSignal struct {
	path   string
	logger ports.Logger
}

// NewFileSignal creates a signal for the marker file at path.
func NewFileSignal(path string, logger ports.Logger) *FileSignal {
	return &FileSignal{path: path, logger: logger}
}

// Path returns the marker file path.
func (s *FileSignal) Path() string {
	return s.path
}

// Check reports whether the marker file exists. FileSignal is also a Probe.
func (s *FileSignal) Check(context.Context) bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Run pushes the marker state into m on start and on every change of the
// marker until ctx is done.
func (s *FileSignal) Run(ctx context.Context, m *Monitor) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the marker itself comes and goes.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	m.SetOnline(s.Check(ctx), "marker file")

	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				m.SetOnline(s.Check(ctx), "marker file "+event.Op.String())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.SetOnline(s.Check(ctx), "marker file rescan")
				continue
			}
			s.logger.Warn("marker watcher error", ports.Err(err))
		}
	}
}
