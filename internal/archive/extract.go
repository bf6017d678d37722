package archive

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mcdonaldj/flatarc/internal/format"
	"github.com/mcdonaldj/flatarc/internal/fsmeta"
	"github.com/mcdonaldj/flatarc/internal/streamio"
)

// ExtractResult reports the outcome of Extract.
type ExtractResult struct {
	// Found is false when no visible record matched; that is not an error.
	Found bool
	Entry Entry
	// Warnings lists attribute-restore and compaction problems that did not
	// prevent the extraction.
	Warnings []Warning
	// Compacted is true when the follow-up compaction succeeded.
	Compacted  bool
	Compaction CompactResult
}

// Extract writes the first visible record whose path equals target to the
// file target, marks the record deleted, and compacts the archive.
func (a *Archive) Extract(ctx context.Context, target string) (ExtractResult, error) {
	const op = "extract"
	var res ExtractResult

	if err := format.ValidatePath(target); err != nil {
		return res, opError(op, target, ErrInvalidArgument, err)
	}

	f, release, err := a.open(os.O_RDWR, true)
	if err != nil {
		return res, opError(op, a.path, nil, err)
	}
	defer release()

	if err := a.refuseSelf(f, target); err != nil {
		return res, opError(op, target, ErrInvalidArgument, err)
	}

	s := newScanner(f, a.bufSize)
	for {
		if err := ctx.Err(); err != nil {
			return res, opError(op, a.path, nil, err)
		}
		e, err := s.next()
		if err == io.EOF {
			a.log.Debug("record not found", "archive", a.path, "path", target)
			return res, nil
		}
		if err != nil {
			return res, opError(op, a.path, nil, err)
		}
		if e.Deleted || e.Path != target {
			continue
		}

		res.Found = true
		res.Entry = e

		if e.Meta.Size > a.maxExtract {
			if err := s.skip(); err != nil {
				return res, opError(op, a.path, nil, err)
			}
			return res, opError(op, target, ErrTooLarge,
				fmt.Errorf("%d bytes exceeds limit of %d bytes", e.Meta.Size, a.maxExtract))
		}

		if err := a.materialize(s, &e); err != nil {
			return res, err
		}

		for _, fail := range fsmeta.Restore(a.fs, target, e.Meta) {
			res.Warnings = append(res.Warnings, a.warn(fail.Op, target, fail.Err))
		}

		e.Deleted = true
		if err := format.RewriteHeader(f, e.Offset, &e.Record); err != nil {
			return res, opError(op, a.path, ErrIO, err)
		}
		if a.sync {
			if err := f.Sync(); err != nil {
				return res, opError(op, a.path, ErrIO, err)
			}
		}
		res.Entry = e

		cr, err := a.compactFrom(ctx, f)
		if err != nil {
			res.Warnings = append(res.Warnings, a.warn("compact", a.path, err))
		} else {
			res.Compacted = true
			res.Compaction = cr
		}

		a.log.Debug("extracted record", "archive", a.path, "path", target, "size", e.Meta.Size)
		return res, nil
	}
}

// materialize copies the current payload of s into a new file at e.Path,
// verifying the digest when one was recorded. A failed copy removes the output.
func (a *Archive) materialize(s *scanner, e *Entry) error {
	const op = "extract"

	out, err := a.fs.OpenFile(e.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsmeta.FileMode(e.Meta.Mode))
	if err != nil {
		return opError(op, e.Path, nil, err)
	}

	hw := streamio.NewDigestWriter(out)
	copyErr := s.copyPayload(hw)
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		err = opError(op, e.Path, nil, copyErr)
	case closeErr != nil:
		err = opError(op, e.Path, ErrIO, closeErr)
	case e.HasDigest() && hw.Sum256() != e.Digest:
		err = opError(op, e.Path, ErrCorruption, fmt.Errorf("payload digest mismatch"))
	}
	if err != nil {
		_ = a.fs.Remove(e.Path)
		return err
	}
	return nil
}

// refuseSelf rejects extracting onto the archive file itself, which would
// truncate the archive before its payload is read.
func (a *Archive) refuseSelf(f interface{ Stat() (os.FileInfo, error) }, target string) error {
	held, err := f.Stat()
	if err != nil {
		return nil
	}
	dest, err := a.fs.Stat(target)
	if err != nil {
		return nil
	}
	if os.SameFile(held, dest) {
		return fmt.Errorf("target is the archive itself")
	}
	return nil
}

func (a *Archive) warn(op, path string, err error) Warning {
	w := Warning{Op: op, Path: path, Err: err}
	a.log.Warn("extract warning", "op", op, "path", path, "err", err)
	return w
}
