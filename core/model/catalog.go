package model

// Catalog is the manifest of one archive. Groups are strictly ascending
// by ID.
type Catalog struct {
	Version uint32
	Groups  []GroupDescriptor
}

// GroupDescriptor describes one group of an archive. Files are strictly
// ascending by ID.
type GroupDescriptor struct {
	ID       uint32
	NameHash int32
	CRC32    uint32
	Version  uint32
	Files    []FileDescriptor
}

type FileDescriptor struct {
	ID       uint32
	NameHash int32
}

// Group returns the descriptor with the given id.
func (c *Catalog) Group(id uint32) (*GroupDescriptor, bool) {
	lo, hi := 0, len(c.Groups)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		switch g := &c.Groups[mid]; {
		case g.ID == id:
			return g, true
		case g.ID < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}

	return nil, false
}

// HasNames reports whether any group or file carries a name hash.
func (c *Catalog) HasNames() bool {
	for _, g := range c.Groups {
		if g.NameHash != 0 {
			return true
		}
		for _, f := range g.Files {
			if f.NameHash != 0 {
				return true
			}
		}
	}

	return false
}
