// Package format defines the on-disk record header of a flatarc archive.
//
// An archive is a plain concatenation of records. Each record is a fixed-size
// header immediately followed by Meta.Size bytes of raw payload, with no
// padding and no trailer. All integers are little-endian.
package format

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/dgryski/go-farm"
	"github.com/pkg/errors"
)

const (
	// HeaderSize is the exact encoded size of every record header.
	HeaderSize = 1144

	// PathFieldSize is the width of the NUL-terminated path field.
	PathFieldSize = 1024
	// MaxPathLen is the longest path that fits, leaving room for the terminator.
	MaxPathLen = PathFieldSize - 1

	// DigestSize is the width of the payload digest field.
	DigestSize = 32

	FormatVersion = 1
)

var magic = [4]byte{'F', 'A', 'R', 'C'}

// field offsets
const (
	offMagic    = 0
	offVersion  = 4
	offPath     = 8
	offMode     = offPath + PathFieldSize // 1032
	offUID      = offMode + 4
	offGID      = offUID + 4
	offSize     = offGID + 8 // 4 reserved bytes after gid
	offATime    = offSize + 8
	offMTime    = offATime + 8
	offCTime    = offMTime + 8
	offNlink    = offCTime + 8
	offIno      = offNlink + 8
	offDev      = offIno + 8
	offDigest   = offDev + 8
	offDeleted  = offDigest + DigestSize
	offChecksum = HeaderSize - 4
)

var (
	ErrEmptyPath       = errors.New("empty path")
	ErrPathTooLong     = errors.New("path too long")
	ErrNegativeSize    = errors.New("negative payload size")
	ErrTruncatedHeader = errors.New("truncated record header")
	ErrCorruptHeader   = errors.New("corrupt record header")
)

// Metadata is the file-status snapshot captured when a file is appended.
// Size is authoritative: it is the length of the payload that follows the header.
type Metadata struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Size  int64
	ATime time.Time
	MTime time.Time
	CTime time.Time
	Nlink uint64
	Ino   uint64
	Dev   uint64
}

// Record is one decoded header.
type Record struct {
	Path    string
	Meta    Metadata
	Digest  [DigestSize]byte
	Deleted bool
}

// HasDigest reports whether a payload digest was recorded for this record.
func (r *Record) HasDigest() bool {
	return r.Digest != [DigestSize]byte{}
}

// Len is the number of archive bytes the record occupies, header included.
func (r *Record) Len() int64 {
	return HeaderSize + r.Meta.Size
}

// ValidatePath checks that p can be stored in the path field.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}
	if len(p) > MaxPathLen {
		return errors.Wrapf(ErrPathTooLong, "%d bytes, limit %d", len(p), MaxPathLen)
	}
	if bytes.IndexByte([]byte(p), 0) >= 0 {
		return errors.Errorf("path %q contains a NUL byte", p)
	}
	return nil
}

// Encode serializes rec into a header block, computing the checksum.
func Encode(rec *Record) ([HeaderSize]byte, error) {
	var buf [HeaderSize]byte

	if err := ValidatePath(rec.Path); err != nil {
		return buf, errors.Wrap(err, "failed to encode header")
	}
	if rec.Meta.Size < 0 {
		return buf, errors.Wrap(ErrNegativeSize, "failed to encode header")
	}

	le := binary.LittleEndian
	copy(buf[offMagic:], magic[:])
	le.PutUint16(buf[offVersion:], FormatVersion)
	copy(buf[offPath:offPath+PathFieldSize], rec.Path)

	m := &rec.Meta
	le.PutUint32(buf[offMode:], m.Mode)
	le.PutUint32(buf[offUID:], m.UID)
	le.PutUint32(buf[offGID:], m.GID)
	le.PutUint64(buf[offSize:], uint64(m.Size))
	le.PutUint64(buf[offATime:], uint64(unixNano(m.ATime)))
	le.PutUint64(buf[offMTime:], uint64(unixNano(m.MTime)))
	le.PutUint64(buf[offCTime:], uint64(unixNano(m.CTime)))
	le.PutUint64(buf[offNlink:], m.Nlink)
	le.PutUint64(buf[offIno:], m.Ino)
	le.PutUint64(buf[offDev:], m.Dev)

	copy(buf[offDigest:], rec.Digest[:])
	if rec.Deleted {
		buf[offDeleted] = 1
	}

	le.PutUint32(buf[offChecksum:], farm.Hash32(buf[:offChecksum]))
	return buf, nil
}

// Decode parses a header block. The block must be exactly HeaderSize bytes.
func Decode(buf []byte) (Record, error) {
	var rec Record

	if len(buf) != HeaderSize {
		return rec, errors.Wrapf(ErrTruncatedHeader, "got %d bytes, want %d", len(buf), HeaderSize)
	}
	if !bytes.Equal(buf[offMagic:offMagic+4], magic[:]) {
		return rec, errors.Wrapf(ErrCorruptHeader, "bad magic %x", buf[offMagic:offMagic+4])
	}

	le := binary.LittleEndian
	if v := le.Uint16(buf[offVersion:]); v != FormatVersion {
		return rec, errors.Wrapf(ErrCorruptHeader, "unsupported format version %d", v)
	}
	if want, got := le.Uint32(buf[offChecksum:]), farm.Hash32(buf[:offChecksum]); want != got {
		return rec, errors.Wrapf(ErrCorruptHeader, "checksum mismatch: stored %08x, computed %08x", want, got)
	}

	pathField := buf[offPath : offPath+PathFieldSize]
	end := bytes.IndexByte(pathField, 0)
	if end <= 0 {
		return rec, errors.Wrap(ErrCorruptHeader, "path field is empty or unterminated")
	}
	rec.Path = string(pathField[:end])

	rec.Meta = Metadata{
		Mode:  le.Uint32(buf[offMode:]),
		UID:   le.Uint32(buf[offUID:]),
		GID:   le.Uint32(buf[offGID:]),
		Size:  int64(le.Uint64(buf[offSize:])),
		ATime: fromUnixNano(int64(le.Uint64(buf[offATime:]))),
		MTime: fromUnixNano(int64(le.Uint64(buf[offMTime:]))),
		CTime: fromUnixNano(int64(le.Uint64(buf[offCTime:]))),
		Nlink: le.Uint64(buf[offNlink:]),
		Ino:   le.Uint64(buf[offIno:]),
		Dev:   le.Uint64(buf[offDev:]),
	}
	if rec.Meta.Size < 0 {
		return rec, errors.Wrapf(ErrCorruptHeader, "negative payload size %d", rec.Meta.Size)
	}

	copy(rec.Digest[:], buf[offDigest:offDigest+DigestSize])
	switch buf[offDeleted] {
	case 0:
	case 1:
		rec.Deleted = true
	default:
		return rec, errors.Wrapf(ErrCorruptHeader, "invalid deleted flag %d", buf[offDeleted])
	}

	return rec, nil
}

// ReadHeader reads and decodes the next header from r.
//
// It returns io.EOF only when no byte at all could be read, which is the
// clean end of an archive. A partial header yields ErrTruncatedHeader.
func ReadHeader(r io.Reader) (Record, error) {
	var block [HeaderSize]byte
	return ReadBlock(r, &block)
}

// ReadBlock is ReadHeader that also leaves the raw header bytes in block,
// so callers can copy a header verbatim without re-encoding it.
func ReadBlock(r io.Reader, block *[HeaderSize]byte) (Record, error) {
	n, err := io.ReadFull(r, block[:])
	switch {
	case err == io.EOF:
		return Record{}, io.EOF
	case err == io.ErrUnexpectedEOF:
		return Record{}, errors.Wrapf(ErrTruncatedHeader, "read %d of %d bytes", n, HeaderSize)
	case err != nil:
		return Record{}, errors.Wrap(err, "failed to read header")
	}
	return Decode(block[:])
}

// WriteHeader encodes rec and writes the whole block to w.
func WriteHeader(w io.Writer, rec *Record) error {
	buf, err := Encode(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf[:]); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	return nil
}

// RewriteHeader replaces the header stored at off with a fresh encoding of rec.
// It is a single bounded write of HeaderSize bytes; payload bytes and file
// length are never touched. The caller must not change rec.Meta.Size.
func RewriteHeader(w io.WriterAt, off int64, rec *Record) error {
	buf, err := Encode(rec)
	if err != nil {
		return err
	}
	n, err := w.WriteAt(buf[:], off)
	if err != nil {
		return errors.Wrapf(err, "failed to rewrite header at offset %d", off)
	}
	if n != HeaderSize {
		return errors.Wrapf(io.ErrShortWrite, "rewrote %d of %d header bytes at offset %d", n, HeaderSize, off)
	}
	return nil
}

// zero time encodes as 0 rather than the far-past nanosecond count
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
