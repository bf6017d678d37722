//go:build linux || darwin || freebsd

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/mcdonaldj/flatarc/internal/ports"
)

const maxLockAttempts = 5

// open opens the archive and, when locking is enabled, takes a flock on it.
// The returned release func drops the lock and closes the file.
//
// A compaction replaces the archive by rename, so a lock obtained after
// waiting may sit on an unlinked inode. In that case the file is reopened.
func (a *Archive) open(flag int, exclusive bool) (ports.File, func() error, error) {
	for attempt := 1; ; attempt++ {
		f, err := a.fs.OpenFile(a.path, flag, a.perm)
		if err != nil {
			return nil, nil, err
		}
		if !a.locking {
			return f, f.Close, nil
		}

		how := unix.LOCK_SH
		if exclusive {
			how = unix.LOCK_EX
		}
		fd := int(f.Fd())
		if err := unix.Flock(fd, how); err != nil {
			_ = f.Close()
			return nil, nil, fmt.Errorf("flock %s: %w", a.path, err)
		}

		current, err := a.isCurrent(f)
		if err == nil && current {
			release := func() error {
				_ = unix.Flock(fd, unix.LOCK_UN)
				return f.Close()
			}
			return f, release, nil
		}

		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = f.Close()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, err
		}
		if attempt == maxLockAttempts {
			return nil, nil, fmt.Errorf("archive %s was replaced %d times while waiting for its lock", a.path, attempt)
		}
		a.log.Debug("archive replaced while waiting for lock, reopening", "archive", a.path)
	}
}

func (a *Archive) isCurrent(f ports.File) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, err
	}
	onDisk, err := a.fs.Stat(a.path)
	if err != nil {
		return false, err
	}
	return os.SameFile(held, onDisk), nil
}
