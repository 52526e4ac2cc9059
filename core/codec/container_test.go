package codec

import (
	"bytes"
	"testing"

	"github.com/bmyte/jagcache/lib/checksum"
	"github.com/bmyte/jagcache/lib/xtea"
	"github.com/stretchr/testify/require"
)

func TestContainerRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("a"),
		bytes.Repeat([]byte("group data "), 500),
		randomBytes(3000, 11),
	}
	keys := []xtea.Key{{}, {0xdeadbeef, 1, 2, 0x7fffffff}}
	versions := []uint32{0, 1, 0xffff}

	for _, c := range []Compressor{Raw, Bzip2, Gzip} {
		for _, data := range payloads {
			for _, key := range keys {
				for _, version := range versions {
					key := key
					encoded, err := EncodeContainer(c, data, version, key)
					require.NoError(t, err)

					got, err := DecodeContainer(encoded, &key)
					require.NoError(t, err)
					require.Equal(t, c, got.Compressor)
					require.True(t, bytes.Equal(data, got.Data), "compressor %s, %d bytes", c, len(data))
					require.Equal(t, version, got.Version)
				}
			}
		}
	}
}

func TestContainerLayout(t *testing.T) {
	encoded, err := EncodeContainer(Raw, []byte("abc"), 7, xtea.Key{})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0, 3, 'a', 'b', 'c', 0, 7}, encoded)

	encoded, err = EncodeContainer(Raw, []byte("abc"), 0, xtea.Key{})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 0, 0, 3, 'a', 'b', 'c'}, encoded)
}

func TestContainerChecksumExcludesVersion(t *testing.T) {
	encoded, err := EncodeContainer(Gzip, []byte("payload"), 12, xtea.Key{})
	require.NoError(t, err)

	got, err := DecodeContainer(encoded, nil)
	require.NoError(t, err)
	require.Equal(t, checksum.CalculateCheckSum(encoded[:len(encoded)-2]), got.CRC32)
}

func TestContainerChecksumCoversCiphertext(t *testing.T) {
	key := xtea.Key{9, 8, 7, 6}
	encoded, err := EncodeContainer(Raw, bytes.Repeat([]byte{1}, 64), 0, key)
	require.NoError(t, err)

	got, err := DecodeContainer(encoded, &key)
	require.NoError(t, err)
	require.Equal(t, checksum.CalculateCheckSum(encoded), got.CRC32)
	require.Equal(t, bytes.Repeat([]byte{1}, 64), got.Data)
}

func TestDecodeContainerDoesNotMutateInput(t *testing.T) {
	key := xtea.Key{1, 1, 1, 1}
	encoded, err := EncodeContainer(Gzip, []byte("do not touch"), 0, key)
	require.NoError(t, err)
	orig := append([]byte(nil), encoded...)

	_, err = DecodeContainer(encoded, &key)
	require.NoError(t, err)
	require.Equal(t, orig, encoded)
}

func TestDecodeContainerErrors(t *testing.T) {
	tests := map[string][]byte{
		"empty":           {},
		"bad tag":         {9, 0, 0, 0, 0},
		"short length":    {0, 0, 0},
		"short payload":   {0, 0, 0, 0, 5, 'a'},
		"trailing bytes":  {0, 0, 0, 0, 1, 'a', 0, 1, 2},
		"partial version": {0, 0, 0, 0, 1, 'a', 0},
	}

	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeContainer(b, nil)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}
