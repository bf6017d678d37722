package streamio

import (
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// HashWriter writes through to an underlying writer while feeding a hash.
type HashWriter struct {
	writer io.Writer
	hasher hash.Hash
}

func NewHashWriter(dest io.Writer, hasher hash.Hash) *HashWriter {
	return &HashWriter{
		writer: dest,
		hasher: hasher,
	}
}

// NewDigestWriter returns a HashWriter computing the BLAKE2b-256 payload digest.
func NewDigestWriter(dest io.Writer) *HashWriter {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for oversized keys
		panic(err)
	}
	return NewHashWriter(dest, h)
}

func (w *HashWriter) Write(b []byte) (int, error) {
	k, err := w.writer.Write(b)
	w.hasher.Write(b[:k])
	if err != nil {
		return k, err
	}
	return k, nil
}

func (w *HashWriter) Sum() []byte {
	return w.hasher.Sum(nil)
}

// Sum256 returns the digest as a fixed-size array.
func (w *HashWriter) Sum256() [32]byte {
	var out [32]byte
	copy(out[:], w.Sum())
	return out
}
