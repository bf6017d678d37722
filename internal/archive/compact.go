package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mcdonaldj/flatarc/internal/ports"
)

// CompactResult summarizes one compaction.
type CompactResult struct {
	Kept        int
	Dropped     int
	BytesBefore int64
	BytesAfter  int64
}

// Reclaimed is the number of bytes freed by the compaction.
func (r CompactResult) Reclaimed() int64 {
	return r.BytesBefore - r.BytesAfter
}

// Compact rewrites the archive without its soft-deleted records.
//
// The replacement is built in a temp file next to the archive and renamed
// over it only once fully written and synced. On any failure the temp file
// is removed and the original archive is left exactly as it was.
func (a *Archive) Compact(ctx context.Context) (CompactResult, error) {
	f, release, err := a.open(os.O_RDONLY, true)
	if err != nil {
		return CompactResult{}, opError("compact", a.path, nil, err)
	}
	defer release()

	return a.compactFrom(ctx, f)
}

// compactFrom compacts using an already open (and possibly locked) archive file.
func (a *Archive) compactFrom(ctx context.Context, src ports.File) (res CompactResult, err error) {
	const op = "compact"

	info, err := src.Stat()
	if err != nil {
		return res, opError(op, a.path, ErrIO, err)
	}
	res.BytesBefore = info.Size()

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return res, opError(op, a.path, ErrIO, err)
	}

	dir, base := filepath.Split(a.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := a.fs.CreateTemp(dir, "."+base+".compact-*")
	if err != nil {
		return res, opError(op, a.path, nil, fmt.Errorf("creating temp file: %w", err))
	}
	tmpName := tmp.Name()

	renamed := false
	closed := false
	defer func() {
		if renamed {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		if rmErr := a.fs.Remove(tmpName); rmErr != nil {
			a.log.Warn("could not remove temp file", "path", tmpName, "err", rmErr)
		}
	}()

	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return res, opError(op, tmpName, ErrIO, err)
	}

	s := newScanner(src, a.bufSize)
	for {
		if err := ctx.Err(); err != nil {
			return res, opError(op, a.path, nil, err)
		}
		e, err := s.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, opError(op, a.path, nil, err)
		}

		if e.Deleted {
			if err := s.skip(); err != nil {
				return res, opError(op, a.path, nil, err)
			}
			res.Dropped++
			continue
		}

		if _, err := tmp.Write(s.header()); err != nil {
			return res, opError(op, tmpName, ErrIO, err)
		}
		if err := s.copyPayload(tmp); err != nil {
			return res, opError(op, a.path, nil, fmt.Errorf("copying %s: %w", e.Path, err))
		}
		res.Kept++
		res.BytesAfter += e.Len()
	}

	if a.sync {
		if err := tmp.Sync(); err != nil {
			return res, opError(op, tmpName, ErrIO, err)
		}
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return res, opError(op, tmpName, ErrIO, err)
	}

	if err := a.fs.Rename(tmpName, a.path); err != nil {
		return res, opError(op, a.path, ErrIO, err)
	}
	renamed = true

	a.log.Debug("compacted archive", "archive", a.path,
		"kept", res.Kept, "dropped", res.Dropped, "reclaimed", res.Reclaimed())
	return res, nil
}
