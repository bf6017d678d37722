// Package osfs provides a filesystem adapter using the standard library os package.
package osfs

import (
	"os"
	"time"

	"github.com/mcdonaldj/flatarc/internal/ports"
)

// OSFileSystem implements ports.FileSystem using the standard library.
type OSFileSystem struct{}

// New creates a new OSFileSystem adapter.
func New() *OSFileSystem {
	return &OSFileSystem{}
}

func (f *OSFileSystem) Open(name string) (ports.File, error) {
	return wrap(os.Open(name))
}

func (f *OSFileSystem) OpenFile(name string, flag int, perm os.FileMode) (ports.File, error) {
	return wrap(os.OpenFile(name, flag, perm))
}

func (f *OSFileSystem) CreateTemp(dir, pattern string) (ports.File, error) {
	return wrap(os.CreateTemp(dir, pattern))
}

// wrap avoids returning a non-nil interface holding a nil *os.File.
func wrap(file *os.File, err error) (ports.File, error) {
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (f *OSFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (f *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (f *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (f *OSFileSystem) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

func (f *OSFileSystem) Chown(name string, uid, gid int) error {
	return os.Chown(name, uid, gid)
}

func (f *OSFileSystem) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

// Compile-time check that OSFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*OSFileSystem)(nil)
