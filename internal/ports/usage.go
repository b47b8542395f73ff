package ports

import "context"

// UsageReporter is implemented by stores that can report how many bytes
// they occupy on disk.
type UsageReporter interface {
	DiskUsage(ctx context.Context) (int64, error)
}
