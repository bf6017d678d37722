// Package ports defines interfaces (contracts) for external dependencies.
// These enable dependency injection and testability via mock implementations.
package ports

import (
	"io"
	"os"
	"time"
)

// File is an open archive, source, temp, or output file.
// *os.File satisfies it; mocks wrap one to inject failures.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.WriterAt
	io.Closer

	// Name returns the name the file was opened with.
	Name() string

	// Stat returns file info for the open file.
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to stable storage.
	Sync() error

	// Chmod changes the permission bits of the open file.
	Chmod(mode os.FileMode) error

	// Fd returns the underlying descriptor (used for fstat and flock).
	Fd() uintptr
}

// FileSystem abstracts filesystem operations for testability.
// Production code uses OSFileSystem adapter; tests use FaultyFileSystem.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (File, error)

	// OpenFile opens the named file with the given flags and permissions.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)

	// CreateTemp creates a new temporary file in dir, see os.CreateTemp.
	CreateTemp(dir, pattern string) (File, error)

	// Stat returns file info for the named file.
	Stat(name string) (os.FileInfo, error)

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// Rename renames (moves) oldpath to newpath.
	Rename(oldpath, newpath string) error

	// Chmod changes the permission bits of the named file.
	Chmod(name string, mode os.FileMode) error

	// Chown changes the numeric owner and group of the named file.
	Chown(name string, uid, gid int) error

	// Chtimes changes the access and modification times of the named file.
	Chtimes(name string, atime, mtime time.Time) error
}
