package codec

import (
	"github.com/bmyte/jagcache/lib/buffer"
	"github.com/bmyte/jagcache/lib/checksum"
	"github.com/bmyte/jagcache/lib/xtea"
	"github.com/pkg/errors"
)

// containerHeaderSize covers the compressor tag and the compressed
// length field.
const containerHeaderSize = 1 + 4

// Container is the decoded form of a group. It is rebuilt on demand and
// never persisted; CRC32 is the checksum of the encoded bytes it came
// from, excluding the version trailer.
type Container struct {
	Compressor Compressor
	Data       []byte
	CRC32      uint32
	Version    uint32
}

// DecodeContainer decodes the encoded form of a group. A nil key means
// the payload is not encrypted. The input is not modified.
func DecodeContainer(b []byte, key *xtea.Key) (*Container, error) {
	r := buffer.NewReader(b)

	tag, err := r.Uint8()
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "container: missing compressor tag")
	}

	compressor, err := ParseCompressor(tag)
	if err != nil {
		return nil, err
	}

	length, err := r.Uint32()
	if err != nil {
		return nil, errors.Wrap(ErrFormat, "container: missing length")
	}

	span := int(length) + compressor.HeaderSize()
	payload, err := r.Slice(span)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "container: payload of %d bytes truncated to %d", span, r.Remaining())
	}

	crc := checksum.CalculateCheckSum(b[:r.Pos()])

	if key != nil && !key.IsZero() {
		payload = append([]byte(nil), payload...)
		xtea.Decrypt(payload, *key)
	}

	data, err := compressor.Decompress(payload)
	if err != nil {
		return nil, err
	}

	var version uint32
	if r.Remaining() > 0 {
		v, err := r.Uint16()
		if err != nil {
			return nil, errors.Wrap(ErrFormat, "container: truncated version")
		}
		if r.Remaining() != 0 {
			return nil, errors.Wrapf(ErrFormat, "container: %d trailing bytes", r.Remaining())
		}
		version = uint32(v)
	}

	return &Container{
		Compressor: compressor,
		Data:       data,
		CRC32:      crc,
		Version:    version,
	}, nil
}

// EncodeContainer produces the encoded form of a group. The version is
// written as a 16-bit trailer only when it is nonzero.
func EncodeContainer(compressor Compressor, data []byte, version uint32, key xtea.Key) ([]byte, error) {
	out := buffer.New(len(data) + containerHeaderSize + compressor.HeaderSize() + 2)
	if err := out.WriteByte(uint8(compressor)); err != nil {
		return nil, err
	}

	pos := out.Len()
	out.WriteUint32(0)

	if err := compressor.Compress(out, data); err != nil {
		return nil, err
	}

	out.PutUint32At(pos, uint32(out.Len()-containerHeaderSize-compressor.HeaderSize()))
	xtea.Encrypt(out.Bytes()[containerHeaderSize:], key)

	if version != 0 {
		out.WriteUint16(uint16(version))
	}

	return out.Bytes(), nil
}
