package updater

import (
	"context"

	"github.com/bmyte/jagcache/core/codec"
	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/lib/xtea"
	"github.com/pkg/errors"
)

// LocalCache holds encoded groups. disk.Store implements it.
type LocalCache interface {
	Get(archive, group int) ([]byte, bool, error)
	Put(archive, group int, data []byte) error
}

// RemoteCache serves encoded groups. remote.Client implements it.
type RemoteCache interface {
	Fetch(ctx context.Context, archive, group int) ([]byte, error)
}

// LocalGroup reads and decodes a stored group. A nil key means the
// group is not encrypted.
func LocalGroup(local LocalCache, archive, group int, key *xtea.Key) (*codec.Container, bool, error) {
	b, ok, err := local.Get(archive, group)
	if err != nil || !ok {
		return nil, ok, err
	}

	c, err := codec.DecodeContainer(b, key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode local group (%d, %d)", archive, group)
	}
	return c, true, nil
}

// LocalCatalog reads the stored catalog of archive.
func LocalCatalog(local LocalCache, archive int) (*model.Catalog, bool, error) {
	c, ok, err := LocalGroup(local, model.MasterArchive, archive, nil)
	if err != nil || !ok {
		return nil, ok, err
	}

	cat, err := codec.DecodeCatalog(c.Data)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode local catalog %d", archive)
	}
	return cat, true, nil
}

func RemoteGroup(ctx context.Context, remote RemoteCache, archive, group int, key *xtea.Key) (*codec.Container, error) {
	b, err := remote.Fetch(ctx, archive, group)
	if err != nil {
		return nil, err
	}

	c, err := codec.DecodeContainer(b, key)
	if err != nil {
		return nil, errors.Wrapf(err, "decode remote group (%d, %d)", archive, group)
	}
	return c, nil
}

// RemoteMaster fetches the master catalog, indexed by archive id.
func RemoteMaster(ctx context.Context, remote RemoteCache) ([]model.MasterEntry, error) {
	c, err := RemoteGroup(ctx, remote, model.MasterArchive, model.MasterArchive, nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetch master catalog")
	}
	return codec.DecodeMaster(c.Data), nil
}

func RemoteCatalog(ctx context.Context, remote RemoteCache, archive int) (*model.Catalog, error) {
	c, err := RemoteGroup(ctx, remote, model.MasterArchive, archive, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch catalog %d", archive)
	}

	cat, err := codec.DecodeCatalog(c.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode remote catalog %d", archive)
	}
	return cat, nil
}
