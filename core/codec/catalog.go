package codec

import (
	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/lib/buffer"
	"github.com/pkg/errors"
)

const (
	catalogProtocolV5 = 5
	catalogProtocolV6 = 6
)

// DecodeCatalog decodes an archive catalog. Protocol 6 carries a
// catalog version, protocol 5 does not; any other tag is rejected.
func DecodeCatalog(b []byte) (*model.Catalog, error) {
	c, err := decodeCatalog(buffer.NewReader(b))
	if errors.Is(err, buffer.ErrShortBuffer) {
		return nil, errors.Wrap(ErrFormat, "catalog: truncated")
	}

	return c, err
}

func decodeCatalog(r *buffer.Reader) (*model.Catalog, error) {
	protocol, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if protocol != catalogProtocolV5 && protocol != catalogProtocolV6 {
		return nil, errors.Wrapf(ErrFormat, "catalog: unsupported protocol %d", protocol)
	}

	catalog := &model.Catalog{}
	if protocol >= catalogProtocolV6 {
		if catalog.Version, err = r.Uint32(); err != nil {
			return nil, err
		}
	}

	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	hasNames := flags != 0

	count, err := r.Uint16()
	if err != nil {
		return nil, err
	}

	var groups []model.GroupDescriptor
	if count > 0 {
		groups = make([]model.GroupDescriptor, count)
	}

	var id uint32
	for i := range groups {
		delta, err := r.Uint16()
		if err != nil {
			return nil, err
		}
		id += uint32(delta)
		groups[i].ID = id
	}

	if hasNames {
		for i := range groups {
			h, err := r.Uint32()
			if err != nil {
				return nil, err
			}
			groups[i].NameHash = int32(h)
		}
	}

	for i := range groups {
		if groups[i].CRC32, err = r.Uint32(); err != nil {
			return nil, err
		}
	}

	for i := range groups {
		if groups[i].Version, err = r.Uint32(); err != nil {
			return nil, err
		}
	}

	for i := range groups {
		n, err := r.Uint16()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			groups[i].Files = make([]model.FileDescriptor, n)
		}
	}

	for i := range groups {
		var fileID uint32
		for j := range groups[i].Files {
			delta, err := r.Uint16()
			if err != nil {
				return nil, err
			}
			fileID += uint32(delta)
			groups[i].Files[j].ID = fileID
		}
	}

	if hasNames {
		for i := range groups {
			for j := range groups[i].Files {
				h, err := r.Uint32()
				if err != nil {
					return nil, err
				}
				groups[i].Files[j].NameHash = int32(h)
			}
		}
	}

	catalog.Groups = groups
	return catalog, nil
}

// EncodeCatalog encodes a catalog with protocol 6. The name hash columns
// are written only when some group or file has a nonzero name hash.
// Group and file ids must be strictly ascending.
func EncodeCatalog(c *model.Catalog) []byte {
	hasNames := c.HasNames()

	size := 1 + 4 + 1 + 2 + len(c.Groups)*(2+4+4+2)
	if hasNames {
		size += len(c.Groups) * 4
	}
	for _, g := range c.Groups {
		size += len(g.Files) * 2
		if hasNames {
			size += len(g.Files) * 4
		}
	}

	out := buffer.New(size)
	_ = out.WriteByte(catalogProtocolV6)
	out.WriteUint32(c.Version)
	if hasNames {
		_ = out.WriteByte(1)
	} else {
		_ = out.WriteByte(0)
	}
	out.WriteUint16(uint16(len(c.Groups)))

	var last uint32
	for _, g := range c.Groups {
		out.WriteUint16(uint16(g.ID - last))
		last = g.ID
	}

	if hasNames {
		for _, g := range c.Groups {
			out.WriteUint32(uint32(g.NameHash))
		}
	}

	for _, g := range c.Groups {
		out.WriteUint32(g.CRC32)
	}

	for _, g := range c.Groups {
		out.WriteUint32(g.Version)
	}

	for _, g := range c.Groups {
		out.WriteUint16(uint16(len(g.Files)))
	}

	for _, g := range c.Groups {
		var lastFile uint32
		for _, f := range g.Files {
			out.WriteUint16(uint16(f.ID - lastFile))
			lastFile = f.ID
		}
	}

	if hasNames {
		for _, g := range c.Groups {
			for _, f := range g.Files {
				out.WriteUint32(uint32(f.NameHash))
			}
		}
	}

	return out.Bytes()
}

// DecodeMaster decodes the master catalog: consecutive {crc32, version}
// pairs indexed by archive id. A trailing partial pair is ignored.
func DecodeMaster(data []byte) []model.MasterEntry {
	r := buffer.NewReader(data)
	entries := make([]model.MasterEntry, len(data)/8)
	for i := range entries {
		entries[i].CRC32, _ = r.Uint32()
		entries[i].Version, _ = r.Uint32()
	}

	return entries
}

// EncodeMaster is the inverse of DecodeMaster.
func EncodeMaster(entries []model.MasterEntry) []byte {
	out := buffer.New(len(entries) * 8)
	for _, e := range entries {
		out.WriteUint32(e.CRC32)
		out.WriteUint32(e.Version)
	}

	return out.Bytes()
}
