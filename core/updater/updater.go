// Package updater brings a local cache up to date with a remote one.
//
// The remote master catalog lists a checksum and version per archive.
// An archive whose stored catalog disagrees with its entry is stale:
// its catalog is refetched and stored, then diffed group by group
// against the previous local catalog, and every group whose checksum or
// version changed is fetched and stored. Group contents are never
// compared.
package updater

import (
	"context"
	"time"

	"github.com/bmyte/jagcache/core/codec"
	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/lib/cmap"
	"github.com/bmyte/jagcache/lib/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var log, _ = logger.New("updater")

// Journal persists the outcome of sync runs. RecordArchive is called as
// soon as an archive finishes, RecordRun once the whole run succeeded.
type Journal interface {
	RecordArchive(ctx context.Context, runID uuid.UUID, a ArchiveReport) error
	RecordRun(ctx context.Context, r *Report) error
}

type Option func(*Updater)

func WithJournal(j Journal) Option {
	return func(u *Updater) {
		u.journal = j
	}
}

type Updater struct {
	local   LocalCache
	remote  RemoteCache
	journal Journal
}

func New(local LocalCache, remote RemoteCache, opts ...Option) *Updater {
	u := &Updater{
		local:  local,
		remote: remote,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// run collects the per-archive results of one Update or UpdateArchive
// call while archives are processed concurrently.
type run struct {
	id      uuid.UUID
	started time.Time
	results *cmap.Map[int, ArchiveReport]
}

func newRun() *run {
	return &run{
		id:      uuid.New(),
		started: time.Now(),
		results: cmap.New[int, ArchiveReport](),
	}
}

func (r *run) report(checked int) *Report {
	rep := &Report{
		RunID:           r.id,
		Started:         r.started,
		Finished:        time.Now(),
		ArchivesChecked: checked,
	}
	r.results.Range(func(_ int, a ArchiveReport) bool {
		rep.Archives = append(rep.Archives, a)
		return true
	})
	rep.sortArchives()
	return rep
}

// Update synchronizes every archive listed by the remote master
// catalog. Stale archives are updated concurrently; the first failure
// aborts the run. Groups stored before the failure stay stored.
func (u *Updater) Update(ctx context.Context) (*Report, error) {
	r := newRun()
	log.Infow("fetching master catalog", "run", r.id)

	master, err := RemoteMaster(ctx, u.remote)
	if err != nil {
		return nil, err
	}

	// Every archive is checked before any update starts, so a failed
	// local read leaves nothing running.
	type staleArchive struct {
		archive int
		local   *model.Catalog
	}
	var stale []staleArchive
	checked := 0
	for archive, entry := range master {
		if archive >= model.MasterArchive {
			break
		}
		checked++

		local, isStale, err := u.check(archive, entry)
		if err != nil {
			return nil, err
		}
		if !isStale {
			log.Debugw("archive up to date", "archive", archive, "version", entry.Version)
			continue
		}

		log.Infow("archive stale", "archive", archive, "crc32", entry.CRC32, "version", entry.Version)
		stale = append(stale, staleArchive{archive: archive, local: local})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range stale {
		a := a
		g.Go(func() error {
			return u.updateArchive(gctx, r, a.archive, a.local)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := r.report(checked)
	if err := u.recordRun(ctx, rep); err != nil {
		return nil, err
	}

	log.Infow("sync finished", "run", rep.RunID,
		"archives", len(rep.Archives), "groups", rep.GroupsFetched(), "duration", rep.Duration())
	return rep, nil
}

// UpdateArchive refetches the catalog of one archive regardless of the
// master catalog and fetches its stale groups.
func (u *Updater) UpdateArchive(ctx context.Context, archive int) (*Report, error) {
	if archive < 0 || archive >= model.MasterArchive {
		return nil, errors.Errorf("updater: archive %d out of range", archive)
	}

	local, _, err := LocalCatalog(u.local, archive)
	if err != nil {
		if !errors.Is(err, codec.ErrFormat) {
			return nil, err
		}
		log.Warnw("ignoring unreadable local catalog", "archive", archive, "err", err)
		local = nil
	}

	r := newRun()
	if err := u.updateArchive(ctx, r, archive, local); err != nil {
		return nil, err
	}

	rep := r.report(1)
	if err := u.recordRun(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// check compares the stored catalog of archive against its master
// entry. The checksum is that of the stored encoded bytes, the version
// that of the decoded catalog. An unreadable local catalog is stale and
// returned as nil.
func (u *Updater) check(archive int, entry model.MasterEntry) (*model.Catalog, bool, error) {
	b, ok, err := u.local.Get(model.MasterArchive, archive)
	if err != nil {
		return nil, false, errors.Wrapf(err, "read local catalog %d", archive)
	}
	if !ok {
		return nil, true, nil
	}

	c, err := codec.DecodeContainer(b, nil)
	if err != nil {
		log.Warnw("ignoring unreadable local catalog", "archive", archive, "err", err)
		return nil, true, nil
	}
	local, err := codec.DecodeCatalog(c.Data)
	if err != nil {
		log.Warnw("ignoring unreadable local catalog", "archive", archive, "err", err)
		return nil, true, nil
	}

	stale := c.CRC32 != entry.CRC32 || local.Version != entry.Version
	return local, stale, nil
}

func (u *Updater) updateArchive(ctx context.Context, r *run, archive int, local *model.Catalog) error {
	b, err := u.remote.Fetch(ctx, model.MasterArchive, archive)
	if err != nil {
		return errors.Wrapf(err, "fetch catalog %d", archive)
	}
	if err := u.local.Put(model.MasterArchive, archive, b); err != nil {
		return errors.Wrapf(err, "store catalog %d", archive)
	}

	c, err := codec.DecodeContainer(b, nil)
	if err != nil {
		return errors.Wrapf(err, "decode catalog container %d", archive)
	}
	remote, err := codec.DecodeCatalog(c.Data)
	if err != nil {
		return errors.Wrapf(err, "decode catalog %d", archive)
	}

	stale := staleGroups(remote, local)
	log.Infow("updating archive", "archive", archive, "version", remote.Version,
		"groups", len(remote.Groups), "stale", len(stale))

	r.results.Set(archive, ArchiveReport{
		Archive:        archive,
		CatalogCRC32:   c.CRC32,
		CatalogVersion: remote.Version,
		Groups:         len(remote.Groups),
		Bytes:          int64(len(b)),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, desc := range stale {
		group := int(desc.ID)
		g.Go(func() error {
			b, err := u.remote.Fetch(gctx, archive, group)
			if err != nil {
				return errors.Wrapf(err, "fetch group (%d, %d)", archive, group)
			}
			if err := u.local.Put(archive, group, b); err != nil {
				return errors.Wrapf(err, "store group (%d, %d)", archive, group)
			}

			groupsFetched.Inc()
			r.results.Update(archive, func(a ArchiveReport, _ bool) ArchiveReport {
				a.GroupsFetched++
				a.Bytes += int64(len(b))
				return a
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	archivesUpdated.Inc()
	a := r.results.Update(archive, func(a ArchiveReport, _ bool) ArchiveReport {
		a.UpdatedAt = time.Now()
		return a
	})
	log.Debugw("archive updated", "archive", archive, "groups", a.GroupsFetched, "bytes", a.Bytes)

	if u.journal != nil {
		if err := u.journal.RecordArchive(ctx, r.id, a); err != nil {
			return errors.Wrapf(err, "journal archive %d", archive)
		}
	}
	return nil
}

func (u *Updater) recordRun(ctx context.Context, rep *Report) error {
	if u.journal == nil {
		return nil
	}
	return errors.Wrap(u.journal.RecordRun(ctx, rep), "journal run")
}
