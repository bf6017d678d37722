// Package archive implements the flatarc archive operations: append, list,
// extract (with soft delete) and compaction.
//
// An Archive value is a handle to one archive path plus the settings that
// govern how it is accessed. It holds no open files between operations; each
// call opens, scans and closes the archive within the call.
package archive

import (
	"log/slog"
	"os"

	"github.com/mcdonaldj/flatarc/internal/adapters/osfs"
	"github.com/mcdonaldj/flatarc/internal/ports"
	"github.com/mcdonaldj/flatarc/internal/streamio"
)

// DefaultMaxExtractSize is the largest payload Extract will materialize (1 GiB).
const DefaultMaxExtractSize int64 = 1 << 30

// DefaultPerm is the permission the archive is created with, before umask.
const DefaultPerm os.FileMode = 0666

// Archive is a handle to a single archive file.
type Archive struct {
	path       string
	fs         ports.FileSystem
	log        *slog.Logger
	bufSize    int
	maxExtract int64
	perm       os.FileMode
	locking    bool
	sync       bool
}

// Option configures an Archive.
type Option func(*Archive)

// WithFileSystem replaces the filesystem used for every file access.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(a *Archive) { a.fs = fs }
}

// WithLogger sets the logger; warnings are logged at WARN, progress at DEBUG.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) { a.log = l }
}

// WithBufferSize sets the transfer buffer size used for payload copies.
func WithBufferSize(n int) Option {
	return func(a *Archive) { a.bufSize = n }
}

// WithMaxExtractSize sets the largest payload Extract will write out.
func WithMaxExtractSize(n int64) Option {
	return func(a *Archive) { a.maxExtract = n }
}

// WithPerm sets the permission bits used when Append creates the archive.
func WithPerm(perm os.FileMode) Option {
	return func(a *Archive) { a.perm = perm }
}

// WithLocking takes an advisory flock on the archive for the duration of
// each operation: exclusive for mutations, shared for reads.
func WithLocking(on bool) Option {
	return func(a *Archive) { a.locking = on }
}

// WithSync controls whether mutations fsync before returning.
func WithSync(on bool) Option {
	return func(a *Archive) { a.sync = on }
}

// New returns a handle for the archive at path. The file is not touched.
func New(path string, opts ...Option) *Archive {
	a := &Archive{
		path:       path,
		fs:         osfs.New(),
		log:        slog.New(slog.DiscardHandler),
		bufSize:    streamio.DefaultBufferSize,
		maxExtract: DefaultMaxExtractSize,
		perm:       DefaultPerm,
		sync:       true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the archive path this handle operates on.
func (a *Archive) Path() string {
	return a.path
}
