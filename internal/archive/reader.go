package archive

import (
	"context"
	"io"
	"os"

	"github.com/mcdonaldj/flatarc/internal/format"
	"github.com/mcdonaldj/flatarc/internal/ports"
	"github.com/mcdonaldj/flatarc/internal/streamio"
)

// Entry is a record header together with the offset it starts at.
type Entry struct {
	Offset int64
	format.Record
}

// scanner walks records in file order. After next returns a header the
// caller either consumes the payload with copyPayload or leaves it, in which
// case the following next (or skip) passes over it.
type scanner struct {
	f       ports.File
	bufSize int
	block   [format.HeaderSize]byte
	off     int64 // offset of the next unread byte
	pending int64 // payload bytes of the current record not yet consumed
}

func newScanner(f ports.File, bufSize int) *scanner {
	return &scanner{f: f, bufSize: bufSize}
}

func (s *scanner) next() (Entry, error) {
	if err := s.skip(); err != nil {
		return Entry{}, err
	}
	rec, err := format.ReadBlock(s.f, &s.block)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Offset: s.off, Record: rec}
	s.off += format.HeaderSize
	s.pending = rec.Meta.Size
	return e, nil
}

func (s *scanner) skip() error {
	if s.pending == 0 {
		return nil
	}
	n := s.pending
	s.pending = 0
	if err := streamio.Skip(s.f, n, s.bufSize); err != nil {
		return err
	}
	s.off += n
	return nil
}

func (s *scanner) copyPayload(dst io.Writer) error {
	n := s.pending
	s.pending = 0
	if err := streamio.Copy(dst, s.f, n, s.bufSize); err != nil {
		return err
	}
	s.off += n
	return nil
}

// header returns the raw bytes of the header last returned by next.
func (s *scanner) header() []byte {
	return s.block[:]
}

// Iterator yields records lazily in file order. Payloads are never read.
type Iterator struct {
	ctx     context.Context
	s       *scanner
	release func() error
	all     bool
	cur     Entry
	err     error
	done    bool
}

// Records opens the archive and returns an iterator over its visible records.
// The caller must Close the iterator.
func (a *Archive) Records(ctx context.Context) (*Iterator, error) {
	return a.iterate(ctx, false)
}

func (a *Archive) iterate(ctx context.Context, all bool) (*Iterator, error) {
	f, release, err := a.open(os.O_RDONLY, false)
	if err != nil {
		return nil, opError("list", a.path, nil, err)
	}
	return &Iterator{
		ctx:     ctx,
		s:       newScanner(f, a.bufSize),
		release: release,
		all:     all,
	}, nil
}

// Next advances to the next record. It returns false at the end of the
// archive or on error; check Err to tell them apart.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	for {
		if err := it.ctx.Err(); err != nil {
			return it.fail(err)
		}
		e, err := it.s.next()
		if err == io.EOF {
			it.done = true
			return false
		}
		if err != nil {
			return it.fail(err)
		}
		if e.Deleted && !it.all {
			continue
		}
		it.cur = e
		return true
	}
}

func (it *Iterator) fail(err error) bool {
	it.err = opError("list", it.s.f.Name(), nil, err)
	it.done = true
	return false
}

// Entry returns the record Next stopped at.
func (it *Iterator) Entry() Entry {
	return it.cur
}

// Err returns the error that ended iteration, if any. A clean end of archive is not an error.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the archive file.
func (it *Iterator) Close() error {
	if it.release == nil {
		return nil
	}
	err := it.release()
	it.release = nil
	return err
}

// List returns every visible record. On error no partial result is returned.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	return a.collect(ctx, false)
}

// Scan returns every record, including soft-deleted ones, with its offset.
func (a *Archive) Scan(ctx context.Context) ([]Entry, error) {
	return a.collect(ctx, true)
}

func (a *Archive) collect(ctx context.Context, all bool) ([]Entry, error) {
	it, err := a.iterate(ctx, all)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	entries := []Entry{}
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
