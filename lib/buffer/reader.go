package buffer

import "encoding/binary"

// Reader is a bounds-checked read cursor over a byte slice.
type Reader struct {
	b   []byte
	pos int
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) Remaining() int {
	return len(r.b) - r.pos
}

// Slice returns the next n bytes and advances past them. The returned
// slice aliases the underlying array.
func (r *Reader) Slice(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}

	s := r.b[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return s, nil
}

func (r *Reader) Uint8() (uint8, error) {
	s, err := r.Slice(1)
	if err != nil {
		return 0, err
	}

	return s[0], nil
}

func (r *Reader) Uint16() (uint16, error) {
	s, err := r.Slice(2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(s), nil
}

func (r *Reader) Medium() (uint32, error) {
	s, err := r.Slice(3)
	if err != nil {
		return 0, err
	}

	return GetMedium(s), nil
}

func (r *Reader) Uint32() (uint32, error) {
	s, err := r.Slice(4)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(s), nil
}
