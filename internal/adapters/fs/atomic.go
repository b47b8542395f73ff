// Package fs persists fieldsync state as JSON documents in a directory.
// Every write goes to a temp file first and is renamed into place.
package fs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// fileName maps a logical key such as "fieldsync:sync-status" to a file name.
func fileName(key string) string {
	return strings.ReplaceAll(key, ":", ".") + ".json"
}

// readJSON decodes path into v. It returns false if the file does not exist.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// writeJSON persists v atomically (write to temp file, then rename).
func writeJSON(dir, path string, v any) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}
