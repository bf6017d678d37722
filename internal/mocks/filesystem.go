// Package mocks provides mock implementations for testing.
package mocks

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/mcdonaldj/flatarc/internal/ports"
)

// ErrInjected is returned by simulated failures.
var ErrInjected = errors.New("injected failure")

// FaultyFileSystem implements ports.FileSystem on top of a real one and
// fails selected operations on demand.
type FaultyFileSystem struct {
	// Inner performs the real work.
	Inner ports.FileSystem
	// Errors maps method names ("Rename", "Chown", ...) to errors to return
	// instead of calling Inner.
	Errors map[string]error
	// TempWriteLimit makes files from CreateTemp fail once this many bytes
	// have been written to them. Negative means unlimited.
	TempWriteLimit int64
	// Calls records method names and paths in call order.
	Calls []Call
	// Temps lists the names of every temp file created.
	Temps []string
}

// Call records one filesystem call.
type Call struct {
	Method string
	Path   string
}

// NewFaultyFileSystem wraps inner with no failures configured.
func NewFaultyFileSystem(inner ports.FileSystem) *FaultyFileSystem {
	return &FaultyFileSystem{
		Inner:          inner,
		Errors:         make(map[string]error),
		TempWriteLimit: -1,
	}
}

func (m *FaultyFileSystem) record(method, path string) error {
	m.Calls = append(m.Calls, Call{Method: method, Path: path})
	if err, ok := m.Errors[method]; ok {
		return &os.PathError{Op: method, Path: path, Err: err}
	}
	return nil
}

// Called reports whether method was invoked at least once.
func (m *FaultyFileSystem) Called(method string) bool {
	for _, c := range m.Calls {
		if c.Method == method {
			return true
		}
	}
	return false
}

func (m *FaultyFileSystem) Open(name string) (ports.File, error) {
	if err := m.record("Open", name); err != nil {
		return nil, err
	}
	return m.Inner.Open(name)
}

func (m *FaultyFileSystem) OpenFile(name string, flag int, perm os.FileMode) (ports.File, error) {
	if err := m.record("OpenFile", name); err != nil {
		return nil, err
	}
	return m.Inner.OpenFile(name, flag, perm)
}

func (m *FaultyFileSystem) CreateTemp(dir, pattern string) (ports.File, error) {
	if err := m.record("CreateTemp", filepath.Join(dir, pattern)); err != nil {
		return nil, err
	}
	f, err := m.Inner.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	m.Temps = append(m.Temps, f.Name())
	if m.TempWriteLimit < 0 {
		return f, nil
	}
	return &faultyFile{File: f, limit: m.TempWriteLimit}, nil
}

func (m *FaultyFileSystem) Stat(name string) (os.FileInfo, error) {
	if err := m.record("Stat", name); err != nil {
		return nil, err
	}
	return m.Inner.Stat(name)
}

func (m *FaultyFileSystem) Remove(name string) error {
	if err := m.record("Remove", name); err != nil {
		return err
	}
	return m.Inner.Remove(name)
}

func (m *FaultyFileSystem) Rename(oldpath, newpath string) error {
	if err := m.record("Rename", oldpath); err != nil {
		return err
	}
	return m.Inner.Rename(oldpath, newpath)
}

func (m *FaultyFileSystem) Chmod(name string, mode os.FileMode) error {
	if err := m.record("Chmod", name); err != nil {
		return err
	}
	return m.Inner.Chmod(name, mode)
}

func (m *FaultyFileSystem) Chown(name string, uid, gid int) error {
	if err := m.record("Chown", name); err != nil {
		return err
	}
	return m.Inner.Chown(name, uid, gid)
}

func (m *FaultyFileSystem) Chtimes(name string, atime, mtime time.Time) error {
	if err := m.record("Chtimes", name); err != nil {
		return err
	}
	return m.Inner.Chtimes(name, atime, mtime)
}

// faultyFile fails writes past a byte budget, simulating a full disk.
type faultyFile struct {
	ports.File
	limit   int64
	written int64
}

func (f *faultyFile) Write(p []byte) (int, error) {
	room := f.limit - f.written
	if room <= 0 {
		return 0, ErrInjected
	}
	if int64(len(p)) > room {
		n, err := f.File.Write(p[:room])
		f.written += int64(n)
		if err != nil {
			return n, err
		}
		return n, ErrInjected
	}
	n, err := f.File.Write(p)
	f.written += int64(n)
	return n, err
}

// Compile-time check that FaultyFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*FaultyFileSystem)(nil)
