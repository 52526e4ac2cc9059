package updater

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ArchiveReport is the outcome of updating one archive.
type ArchiveReport struct {
	Archive        int       `json:"archive"`
	CatalogCRC32   uint32    `json:"catalog_crc32"`
	CatalogVersion uint32    `json:"catalog_version"`
	Groups         int       `json:"groups"`
	GroupsFetched  int       `json:"groups_fetched"`
	Bytes          int64     `json:"bytes"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Report summarizes one sync run.
type Report struct {
	RunID           uuid.UUID       `json:"run_id"`
	Started         time.Time       `json:"started"`
	Finished        time.Time       `json:"finished"`
	ArchivesChecked int             `json:"archives_checked"`
	Archives        []ArchiveReport `json:"archives"`
}

func (r *Report) GroupsFetched() int {
	n := 0
	for _, a := range r.Archives {
		n += a.GroupsFetched
	}
	return n
}

// Bytes is the number of encoded bytes written, catalogs included.
func (r *Report) Bytes() int64 {
	var n int64
	for _, a := range r.Archives {
		n += a.Bytes
	}
	return n
}

func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

func (r *Report) sortArchives() {
	sort.Slice(r.Archives, func(i, j int) bool {
		return r.Archives[i].Archive < r.Archives[j].Archive
	})
}
