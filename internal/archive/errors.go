package archive

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/mcdonaldj/flatarc/internal/format"
	"github.com/mcdonaldj/flatarc/internal/streamio"
)

// Error kinds. Every error returned by an Archive operation matches exactly
// one of these with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIO              = errors.New("i/o error")
	ErrCorruption      = errors.New("archive is corrupt")
	ErrPermission      = errors.New("permission denied")

	// ErrTooLarge is an ErrInvalidArgument for records above the extract size limit.
	ErrTooLarge = fmt.Errorf("%w: record exceeds extract size limit", ErrInvalidArgument)
)

// OpError is the error type returned by Archive operations.
type OpError struct {
	Op   string // append, list, extract, compact, verify
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func opError(op, path string, kind, err error) error {
	if kind == nil {
		kind = classify(err)
	}
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// classify maps lower-level errors onto the archive error kinds. Short payload
// reads count as corruption because they can only come from the archive side;
// callers reading from a source file pass ErrIO explicitly.
func classify(err error) error {
	var op *OpError
	switch {
	case errors.As(err, &op):
		return op.Kind
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermission
	case errors.Is(err, format.ErrTruncatedHeader),
		errors.Is(err, format.ErrCorruptHeader),
		errors.Is(err, streamio.ErrShortRead):
		return ErrCorruption
	case errors.Is(err, format.ErrPathTooLong),
		errors.Is(err, format.ErrEmptyPath):
		return ErrInvalidArgument
	default:
		return ErrIO
	}
}

// Warning is a non-fatal problem reported alongside a successful operation.
type Warning struct {
	Op   string // chmod, chown, chtimes or compact
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %v", w.Op, w.Path, w.Err)
}
