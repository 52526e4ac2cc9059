// Package buffer holds the byte-level helpers shared by the codecs, the
// disk store and the network client: a growable append buffer with
// back-patching, a bounds-checked cursor, and 24-bit "medium" integers.
package buffer

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrShortBuffer = errors.New("buffer: not enough bytes remaining")
)

// Buffer is an append-only byte buffer. Every write reserves its space
// first, so previously written regions can be patched in place through
// Bytes or the Put*At helpers. A Buffer must not be shared between
// concurrent encodes.
type Buffer struct {
	b []byte
}

func New(capacity int) *Buffer {
	if capacity < 32 {
		capacity = 32
	}

	return &Buffer{b: make([]byte, 0, capacity)}
}

// reserve grows the backing array so that n more bytes fit.
func (buf *Buffer) reserve(n int) {
	if cap(buf.b)-len(buf.b) >= n {
		return
	}

	c := cap(buf.b) * 2
	if c < len(buf.b)+n {
		c = len(buf.b) + n
	}

	grown := make([]byte, len(buf.b), c)
	copy(grown, buf.b)
	buf.b = grown
}

// Len returns the append cursor position.
func (buf *Buffer) Len() int {
	return len(buf.b)
}

// Bytes returns the written region. The slice aliases the buffer.
func (buf *Buffer) Bytes() []byte {
	return buf.b
}

// Reset moves the cursor back to the start, keeping the capacity.
func (buf *Buffer) Reset() {
	buf.b = buf.b[:0]
}

func (buf *Buffer) Write(p []byte) (int, error) {
	buf.reserve(len(p))
	buf.b = append(buf.b, p...)
	return len(p), nil
}

func (buf *Buffer) WriteByte(c byte) error {
	buf.reserve(1)
	buf.b = append(buf.b, c)
	return nil
}

func (buf *Buffer) WriteUint16(v uint16) {
	buf.reserve(2)
	buf.b = binary.BigEndian.AppendUint16(buf.b, v)
}

func (buf *Buffer) WriteUint32(v uint32) {
	buf.reserve(4)
	buf.b = binary.BigEndian.AppendUint32(buf.b, v)
}

func (buf *Buffer) WriteMedium(v uint32) {
	buf.reserve(3)
	buf.b = append(buf.b, byte(v>>16), byte(v>>8), byte(v))
}

// PutUint32At overwrites four already written bytes at pos.
func (buf *Buffer) PutUint32At(pos int, v uint32) {
	binary.BigEndian.PutUint32(buf.b[pos:pos+4], v)
}

// ReadFrom appends everything r produces until EOF.
func (buf *Buffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		buf.reserve(512)
		n, err := r.Read(buf.b[len(buf.b):cap(buf.b)])
		buf.b = buf.b[:len(buf.b)+n]
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// GetMedium decodes a big-endian 24-bit integer.
func GetMedium(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// PutMedium encodes the low 24 bits of v big-endian.
func PutMedium(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// ReadExactly reads exactly n bytes from r.
func ReadExactly(r io.Reader, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Join concatenates the given slices into a fresh one. A single slice is
// returned as is.
func Join(parts ...[]byte) []byte {
	if len(parts) == 1 {
		return parts[0]
	}

	n := 0
	for _, p := range parts {
		n += len(p)
	}

	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}

	return out
}
