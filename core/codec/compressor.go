package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bmyte/jagcache/lib/buffer"
	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Compressor identifies the codec of a container payload. Values are
// wire constants: the tag byte of every container.
type Compressor uint8

const (
	Raw   Compressor = 0
	Bzip2 Compressor = 1
	Gzip  Compressor = 2
)

// MaxDecompressedSize bounds the uncompressed length a payload header
// may declare, matching the 24-bit length of a stored group.
const MaxDecompressedSize = 1 << 24

// bzip2 streams are written with the smallest block size; the four magic
// bytes are dropped on the wire and restored before decoding.
var bzip2Magic = []byte{'B', 'Z', 'h', '1'}

func ParseCompressor(tag uint8) (Compressor, error) {
	switch c := Compressor(tag); c {
	case Raw, Bzip2, Gzip:
		return c, nil
	default:
		return 0, errors.Wrapf(ErrFormat, "unknown compressor tag %d", tag)
	}
}

func (c Compressor) String() string {
	switch c {
	case Raw:
		return "raw"
	case Bzip2:
		return "bzip2"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// HeaderSize is the length of the uncompressed-size prefix that sits
// in front of a compressed stream.
func (c Compressor) HeaderSize() int {
	if c == Raw {
		return 0
	}

	return 4
}

// Compress appends the header and compressed form of data to dst.
func (c Compressor) Compress(dst *buffer.Buffer, data []byte) error {
	switch c {
	case Raw:
		_, err := dst.Write(data)
		return err

	case Bzip2:
		start := dst.Len()
		w, err := bzip2.NewWriter(dst, &bzip2.WriterConfig{Level: 1})
		if err != nil {
			return errors.Wrap(err, "bzip2 writer")
		}
		if _, err := w.Write(data); err != nil {
			return errors.Wrap(err, "bzip2 compress")
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, "bzip2 compress")
		}
		// The stream opens with the magic; its four bytes become the
		// uncompressed length.
		dst.PutUint32At(start, uint32(len(data)))
		return nil

	case Gzip:
		dst.WriteUint32(uint32(len(data)))
		w := gzip.NewWriter(dst)
		if _, err := w.Write(data); err != nil {
			return errors.Wrap(err, "gzip compress")
		}
		return errors.Wrap(w.Close(), "gzip compress")

	default:
		return errors.Wrapf(ErrFormat, "unknown compressor %d", uint8(c))
	}
}

// Decompress reverses Compress. payload holds the header followed by
// the compressed stream.
func (c Compressor) Decompress(payload []byte) ([]byte, error) {
	if c == Raw {
		return append([]byte(nil), payload...), nil
	}

	if len(payload) < c.HeaderSize() {
		return nil, errors.Wrapf(ErrFormat, "%s payload shorter than its header", c)
	}

	declared := binary.BigEndian.Uint32(payload)
	if declared > MaxDecompressedSize {
		return nil, errors.Wrapf(ErrFormat, "%s payload declares %d uncompressed bytes", c, declared)
	}
	size := int(declared)
	stream := payload[c.HeaderSize():]

	var r io.Reader
	switch c {
	case Bzip2:
		br, err := bzip2.NewReader(io.MultiReader(bytes.NewReader(bzip2Magic), bytes.NewReader(stream)), nil)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "bzip2 header: %v", err)
		}
		defer br.Close()
		r = br

	case Gzip:
		gr, err := gzip.NewReader(bytes.NewReader(stream))
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "gzip header: %v", err)
		}
		defer gr.Close()
		r = gr

	default:
		return nil, errors.Wrapf(ErrFormat, "unknown compressor %d", uint8(c))
	}

	out, err := buffer.ReadExactly(r, size)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "%s decompress %d bytes: %v", c, size, err)
	}

	return out, nil
}

// Best compresses data with both general purpose codecs and returns
// the compressor with the smallest output. Raw wins every tie, gzip wins
// a tie with bzip2.
func Best(data []byte) (Compressor, error) {
	out := buffer.New(len(data) + 64)
	if err := Gzip.Compress(out, data); err != nil {
		return Raw, err
	}
	gz := out.Len()

	out.Reset()
	if err := Bzip2.Compress(out, data); err != nil {
		return Raw, err
	}
	bz := out.Len()

	none := len(data)
	if none <= gz && none <= bz {
		return Raw, nil
	}
	if gz <= bz {
		return Gzip, nil
	}

	return Bzip2, nil
}
