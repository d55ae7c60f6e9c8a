package remote

import (
	"context"
	"time"
)

// FileStat is the subset of remote file metadata the pipeline needs.
type FileStat struct {
	Size    int64
	ModTime time.Time
}

// Session is the remote file-transfer capability consumed by the path
// locator and the pipeline. One session serves one server and is reused
// across ticks; implementations reconnect transparently with backoff.
type Session interface {
	// Exists reports whether a remote path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// ListDir returns the entry names of a remote directory.
	// Directories are reported with a trailing slash stripped; callers
	// use Stat/IsDir to distinguish.
	ListDir(ctx context.Context, dir string) ([]string, error)

	// IsDir reports whether a remote path is a directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// Stat returns size and mtime of a remote file.
	Stat(ctx context.Context, path string) (FileStat, error)

	// ReadFile returns the full content of a remote file.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Close tears the session down.
	Close() error
}
