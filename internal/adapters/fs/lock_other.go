//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package fs

import "os"

// Platforms without flock only get the in-process mutex.
func tryLock(*os.File) error { return nil }

func unlock(*os.File) error { return nil }
