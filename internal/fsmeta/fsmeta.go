// Package fsmeta captures and restores the file attributes stored in a record header.
package fsmeta

import (
	"fmt"
	"os"
	"time"

	"github.com/mcdonaldj/flatarc/internal/format"
)

// Attributer is the subset of filesystem primitives needed to restore attributes.
type Attributer interface {
	Chmod(name string, mode os.FileMode) error
	Chown(name string, uid, gid int) error
	Chtimes(name string, atime, mtime time.Time) error
}

// Failure describes one attribute that could not be restored.
type Failure struct {
	Op  string // chmod, chown or chtimes
	Err error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

// Restore applies permission bits, ownership and timestamps from m to path.
// Every step is attempted; failures are collected rather than returned early
// because ownership in particular fails routinely for unprivileged users.
func Restore(fs Attributer, path string, m format.Metadata) []Failure {
	var failures []Failure

	if err := fs.Chmod(path, FileMode(m.Mode)); err != nil {
		failures = append(failures, Failure{Op: "chmod", Err: err})
	}

	if err := fs.Chown(path, int(m.UID), int(m.GID)); err != nil {
		failures = append(failures, Failure{Op: "chown", Err: err})
	}

	atime, mtime := m.ATime, m.MTime
	if atime.IsZero() {
		atime = mtime
	}
	if !mtime.IsZero() {
		if err := fs.Chtimes(path, atime, mtime); err != nil {
			failures = append(failures, Failure{Op: "chtimes", Err: err})
		}
	}

	return failures
}

// FileMode converts a raw st_mode into the permission part of an os.FileMode.
func FileMode(mode uint32) os.FileMode {
	fm := os.FileMode(mode & 0777)
	if mode&modeSetuid != 0 {
		fm |= os.ModeSetuid
	}
	if mode&modeSetgid != 0 {
		fm |= os.ModeSetgid
	}
	if mode&modeSticky != 0 {
		fm |= os.ModeSticky
	}
	return fm
}

const (
	modeSetuid   = 04000
	modeSetgid   = 02000
	modeSticky   = 01000
	modeTypeMask = 0170000
	modeRegular  = 0100000
)

// IsRegular reports whether a raw st_mode describes a regular file.
func IsRegular(mode uint32) bool {
	return mode&modeTypeMask == modeRegular
}
