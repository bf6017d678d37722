//go:build linux || darwin || freebsd

package fsmeta

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mcdonaldj/flatarc/internal/format"
)

// File is satisfied by *os.File and ports.File.
type File interface {
	Fd() uintptr
	Name() string
}

// Stat snapshots the attributes of an open file.
func Stat(f File) (format.Metadata, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return format.Metadata{}, &os.PathError{Op: "fstat", Path: f.Name(), Err: err}
	}
	return fromStat(&st), nil
}

// StatPath snapshots the attributes of the file at path, following symlinks.
func StatPath(path string) (format.Metadata, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return format.Metadata{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return fromStat(&st), nil
}

func fromStat(st *unix.Stat_t) format.Metadata {
	return format.Metadata{
		Mode:  uint32(st.Mode),
		UID:   st.Uid,
		GID:   st.Gid,
		Size:  st.Size,
		ATime: timespec(st.Atim),
		MTime: timespec(st.Mtim),
		CTime: timespec(st.Ctim),
		Nlink: uint64(st.Nlink),
		Ino:   uint64(st.Ino),
		Dev:   uint64(st.Dev),
	}
}

func timespec(ts unix.Timespec) time.Time {
	sec, nsec := ts.Unix()
	return time.Unix(sec, nsec)
}
