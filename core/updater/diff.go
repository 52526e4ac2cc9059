package updater

import "github.com/bmyte/jagcache/core/model"

// staleGroups walks both catalogs in id order and returns the remote
// groups whose local descriptor is missing or differs in checksum or
// version. Local groups the remote no longer lists are passed over and
// left in place. A nil local catalog counts as empty.
func staleGroups(remote, local *model.Catalog) []model.GroupDescriptor {
	var stale []model.GroupDescriptor

	lj := 0
	for _, rg := range remote.Groups {
		var lg *model.GroupDescriptor
		for local != nil && lj < len(local.Groups) {
			g := &local.Groups[lj]
			lj++
			if g.ID == rg.ID {
				lg = g
				break
			}
			if rg.ID < g.ID {
				// Not reached yet on the local side, keep it for the
				// next remote group.
				lj--
				break
			}
		}

		if lg == nil || lg.CRC32 != rg.CRC32 || lg.Version != rg.Version {
			stale = append(stale, rg)
		}
	}

	return stale
}
