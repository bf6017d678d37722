package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mcdonaldj/flatarc/internal/format"
	"github.com/mcdonaldj/flatarc/internal/fsmeta"
	"github.com/mcdonaldj/flatarc/internal/streamio"
)

// Append adds source to the end of the archive, creating the archive if needed.
// The record path is source exactly as given.
//
// A failure while the payload is being written leaves a partial record at the
// tail of the archive; there is no rollback.
func (a *Archive) Append(ctx context.Context, source string) (Entry, error) {
	const op = "append"

	if err := format.ValidatePath(source); err != nil {
		return Entry{}, opError(op, source, ErrInvalidArgument, err)
	}
	if err := ctx.Err(); err != nil {
		return Entry{}, opError(op, source, nil, err)
	}

	src, err := a.fs.Open(source)
	if err != nil {
		return Entry{}, opError(op, source, nil, err)
	}
	defer src.Close()

	meta, err := fsmeta.Stat(src)
	if err != nil {
		return Entry{}, opError(op, source, nil, err)
	}
	if !fsmeta.IsRegular(meta.Mode) {
		return Entry{}, opError(op, source, ErrInvalidArgument, errors.New("not a regular file"))
	}

	arc, release, err := a.open(os.O_RDWR|os.O_CREATE, true)
	if err != nil {
		return Entry{}, opError(op, a.path, nil, err)
	}
	defer release()

	off, err := arc.Seek(0, io.SeekEnd)
	if err != nil {
		return Entry{}, opError(op, a.path, ErrIO, err)
	}

	rec := format.Record{Path: source, Meta: meta}
	if err := format.WriteHeader(arc, &rec); err != nil {
		return Entry{}, opError(op, a.path, ErrIO, err)
	}

	// The digest is only known once the payload has been copied, so the
	// header goes out with a zero digest and is patched in place afterwards.
	hw := streamio.NewDigestWriter(arc)
	if err := streamio.Copy(hw, src, meta.Size, a.bufSize); err != nil {
		return Entry{}, opError(op, source, ErrIO, fmt.Errorf("copying payload: %w", err))
	}
	rec.Digest = hw.Sum256()
	if err := format.RewriteHeader(arc, off, &rec); err != nil {
		return Entry{}, opError(op, a.path, ErrIO, err)
	}

	if a.sync {
		if err := arc.Sync(); err != nil {
			return Entry{}, opError(op, a.path, ErrIO, err)
		}
	}

	a.log.Debug("appended record", "archive", a.path, "path", source, "size", meta.Size, "offset", off)
	return Entry{Offset: off, Record: rec}, nil
}
