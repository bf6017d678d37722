// Package streamio moves or skips an exact number of bytes between streams
// through a bounded buffer.
package streamio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultBufferSize is the transfer buffer used when callers pass 0.
const DefaultBufferSize = 8 * 1024

var (
	// ErrShortRead means the source ended before n bytes were available.
	ErrShortRead = errors.New("source ended before declared length")
	// ErrShortWrite means the destination stopped accepting bytes.
	ErrShortWrite = errors.New("destination accepted fewer bytes than written")
)

func bufferFor(n int64, size int) []byte {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if n < int64(size) {
		size = int(n)
	}
	return make([]byte, size)
}

// Copy transfers exactly n bytes from src to dst.
func Copy(dst io.Writer, src io.Reader, n int64, bufSize int) error {
	if n <= 0 {
		return nil
	}
	buf := bufferFor(n, bufSize)
	remaining := n

	for remaining > 0 {
		chunk := buf
		if remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		read, err := src.Read(chunk)
		if read > 0 {
			if werr := writeFull(dst, chunk[:read]); werr != nil {
				return werr
			}
			remaining -= int64(read)
		}
		if err == io.EOF {
			if remaining > 0 {
				return fmt.Errorf("%w: %d of %d bytes missing", ErrShortRead, remaining, n)
			}
			break
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
	return nil
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		if n == 0 {
			return ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

type statter interface {
	Stat() (os.FileInfo, error)
}

// Skip advances src by n bytes without retaining them.
//
// Seekable sources are moved with a relative seek. When the source can also
// report its size the new offset is checked against it, so a seek past the
// end fails with ErrShortRead exactly like the read-and-discard fallback does.
func Skip(src io.Reader, n int64, bufSize int) error {
	if n <= 0 {
		return nil
	}
	if s, ok := src.(io.Seeker); ok {
		if err := seekSkip(s, src, n); err == nil {
			return nil
		} else if errors.Is(err, ErrShortRead) {
			return err
		}
		// not actually seekable (pipe, tty): fall through
	}
	return Copy(io.Discard, src, n, bufSize)
}

func seekSkip(s io.Seeker, src io.Reader, n int64) error {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if st, ok := src.(statter); ok {
		fi, err := st.Stat()
		if err == nil && fi.Mode().IsRegular() {
			if avail := fi.Size() - cur; avail < n {
				// leave the stream where the fallback would have: at EOF
				if _, err := s.Seek(0, io.SeekEnd); err != nil {
					return err
				}
				return fmt.Errorf("%w: %d of %d bytes missing", ErrShortRead, n-avail, n)
			}
		}
	}
	if sized, ok := src.(interface{ Size() int64 }); ok {
		if avail := sized.Size() - cur; avail < n {
			if _, err := s.Seek(0, io.SeekEnd); err != nil {
				return err
			}
			return fmt.Errorf("%w: %d of %d bytes missing", ErrShortRead, n-avail, n)
		}
	}
	_, err = s.Seek(n, io.SeekCurrent)
	return err
}
