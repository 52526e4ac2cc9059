package codec

import (
	"testing"

	"github.com/bmyte/jagcache/core/model"
	"github.com/stretchr/testify/require"
)

func testCatalog(names bool) *model.Catalog {
	c := &model.Catalog{
		Version: 42,
		Groups: []model.GroupDescriptor{
			{ID: 0, CRC32: 0xdeadbeef, Version: 1, Files: []model.FileDescriptor{{ID: 0}}},
			{ID: 3, CRC32: 0x01020304, Version: 9, Files: []model.FileDescriptor{{ID: 1}, {ID: 2}, {ID: 70000 - 65535}}},
			{ID: 40000, CRC32: 7, Version: 0xffffffff},
		},
	}
	if names {
		c.Groups[1].NameHash = -123456
		c.Groups[1].Files[2].NameHash = 99
	}

	return c
}

func TestCatalogRoundTrip(t *testing.T) {
	for _, names := range []bool{false, true} {
		c := testCatalog(names)
		got, err := DecodeCatalog(EncodeCatalog(c))
		require.NoError(t, err)
		require.Equal(t, c, got)
	}

	empty := &model.Catalog{Version: 1}
	got, err := DecodeCatalog(EncodeCatalog(empty))
	require.NoError(t, err)
	require.Equal(t, empty, got)
}

func TestCatalogColumnLayout(t *testing.T) {
	c := &model.Catalog{
		Version: 2,
		Groups: []model.GroupDescriptor{
			{ID: 1, CRC32: 0x0a, Version: 0x0b, Files: []model.FileDescriptor{{ID: 0}, {ID: 4}}},
			{ID: 5, CRC32: 0x0c, Version: 0x0d, Files: []model.FileDescriptor{{ID: 2}}},
		},
	}

	want := []byte{
		6,
		0, 0, 0, 2, // version
		0,    // names
		0, 2, // group count
		0, 1, 0, 4, // id deltas
		0, 0, 0, 0x0a, 0, 0, 0, 0x0c, // crcs
		0, 0, 0, 0x0b, 0, 0, 0, 0x0d, // versions
		0, 2, 0, 1, // file counts
		0, 0, 0, 4, // group 1 file deltas
		0, 2, // group 5 file deltas
	}
	require.Equal(t, want, EncodeCatalog(c))
}

func TestDecodeCatalogProtocol5(t *testing.T) {
	b := []byte{
		5,
		1,    // names
		0, 1, // one group
		0, 7, // id 7
		0xff, 0xff, 0xff, 0xfe, // name hash -2
		0, 0, 0, 1, // crc
		0, 0, 0, 2, // version
		0, 1, // one file
		0, 3, // file id 3
		0, 0, 0, 5, // file name hash
	}

	got, err := DecodeCatalog(b)
	require.NoError(t, err)
	require.Equal(t, &model.Catalog{
		Groups: []model.GroupDescriptor{{
			ID: 7, NameHash: -2, CRC32: 1, Version: 2,
			Files: []model.FileDescriptor{{ID: 3, NameHash: 5}},
		}},
	}, got)
}

func TestDecodeCatalogErrors(t *testing.T) {
	_, err := DecodeCatalog([]byte{7, 0, 0})
	require.ErrorIs(t, err, ErrFormat)

	_, err = DecodeCatalog(nil)
	require.ErrorIs(t, err, ErrFormat)

	full := EncodeCatalog(testCatalog(true))
	_, err = DecodeCatalog(full[:len(full)-1])
	require.ErrorIs(t, err, ErrFormat)
}

func TestMasterRoundTrip(t *testing.T) {
	entries := []model.MasterEntry{{CRC32: 0xaa, Version: 2}, {}, {CRC32: 0xffffffff, Version: 1}}
	b := EncodeMaster(entries)
	require.Len(t, b, 24)
	require.Equal(t, entries, DecodeMaster(b))

	require.Equal(t, entries[:1], DecodeMaster(append(b[:8:8], 1, 2, 3)))
}
