// Package state keeps a leveldb journal of sync runs next to the cache:
// the report of every successful run and the last known state of every
// archive.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	fp "path/filepath"
	"sort"

	"github.com/bmyte/jagcache/core/updater"
	"github.com/bmyte/jagcache/lib/logger"
	"github.com/google/uuid"
	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"
	"github.com/pkg/errors"
)

const DirName = "journal"

var log, _ = logger.New("state")

var ErrNotFound = errors.New("state: not found")

var (
	runsPrefix     = ds.NewKey("/runs")
	archivesPrefix = ds.NewKey("/archives")
	lastRunKey     = ds.NewKey("/last-run")
)

// ArchiveState is the outcome of the last update of an archive.
type ArchiveState struct {
	updater.ArchiveReport
	RunID uuid.UUID `json:"run_id"`
}

// Journal implements updater.Journal.
type Journal struct {
	db *dslvl.Datastore
}

var _ updater.Journal = (*Journal)(nil)

// Open opens the journal kept under cacheDir.
func Open(cacheDir string) (*Journal, error) {
	p := fp.Join(cacheDir, DirName)
	db, err := dslvl.NewDatastore(p, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %s", p)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func archiveKey(archive int) ds.Key {
	return archivesPrefix.ChildString(fmt.Sprintf("%03d", archive))
}

func runKey(id uuid.UUID) ds.Key {
	return runsPrefix.ChildString(id.String())
}

func (j *Journal) RecordArchive(ctx context.Context, runID uuid.UUID, a updater.ArchiveReport) error {
	return j.put(ctx, archiveKey(a.Archive), ArchiveState{ArchiveReport: a, RunID: runID})
}

func (j *Journal) RecordRun(ctx context.Context, r *updater.Report) error {
	if err := j.put(ctx, runKey(r.RunID), r); err != nil {
		return err
	}
	if err := j.db.Put(ctx, lastRunKey, []byte(r.RunID.String())); err != nil {
		return errors.Wrap(err, "journal: put last run")
	}

	log.Debugw("run recorded", "run", r.RunID, "archives", len(r.Archives))
	return nil
}

// Archive returns the last recorded state of archive.
func (j *Journal) Archive(ctx context.Context, archive int) (*ArchiveState, error) {
	var a ArchiveState
	if err := j.get(ctx, archiveKey(archive), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Archives returns the recorded state of every archive, by archive id.
func (j *Journal) Archives(ctx context.Context) ([]*ArchiveState, error) {
	archives := make([]*ArchiveState, 0)
	err := j.query(ctx, archivesPrefix, func(b []byte) error {
		var a ArchiveState
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		archives = append(archives, &a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(archives, func(i, k int) bool {
		return archives[i].Archive < archives[k].Archive
	})
	return archives, nil
}

func (j *Journal) Run(ctx context.Context, id uuid.UUID) (*updater.Report, error) {
	var r updater.Report
	if err := j.get(ctx, runKey(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// LastRun returns the report of the most recently recorded run.
func (j *Journal) LastRun(ctx context.Context) (*updater.Report, error) {
	b, err := j.db.Get(ctx, lastRunKey)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "journal: get last run")
	}

	id, err := uuid.ParseBytes(b)
	if err != nil {
		return nil, errors.Wrap(err, "journal: parse last run id")
	}
	return j.Run(ctx, id)
}

// Runs returns every recorded run, oldest first.
func (j *Journal) Runs(ctx context.Context) ([]*updater.Report, error) {
	runs := make([]*updater.Report, 0)
	err := j.query(ctx, runsPrefix, func(b []byte) error {
		var r updater.Report
		if err := json.Unmarshal(b, &r); err != nil {
			return err
		}
		runs = append(runs, &r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, k int) bool {
		return runs[i].Started.Before(runs[k].Started)
	})
	return runs, nil
}

func (j *Journal) put(ctx context.Context, k ds.Key, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "journal: marshal %s", k)
	}
	return errors.Wrapf(j.db.Put(ctx, k, b), "journal: put %s", k)
}

func (j *Journal) get(ctx context.Context, k ds.Key, v any) error {
	b, err := j.db.Get(ctx, k)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "%s", k)
		}
		return errors.Wrapf(err, "journal: get %s", k)
	}
	return errors.Wrapf(json.Unmarshal(b, v), "journal: unmarshal %s", k)
}

func (j *Journal) query(ctx context.Context, prefix ds.Key, f func(b []byte) error) error {
	res, err := j.db.Query(ctx, dsq.Query{Prefix: prefix.String()})
	if err != nil {
		return errors.Wrapf(err, "journal: query %s", prefix)
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return errors.Wrapf(r.Error, "journal: query %s", prefix)
		}
		if err := f(r.Value); err != nil {
			return errors.Wrapf(err, "journal: decode %s", r.Key)
		}
	}
	return nil
}
