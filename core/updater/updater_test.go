package updater

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bmyte/jagcache/core/codec"
	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/lib/xtea"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type key struct {
	archive, group int
}

type memCache struct {
	mu     sync.Mutex
	groups map[key][]byte
}

func newMemCache() *memCache {
	return &memCache{groups: make(map[key][]byte)}
}

func (m *memCache) Get(archive, group int) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.groups[key{archive, group}]
	return b, ok, nil
}

func (m *memCache) Put(archive, group int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[key{archive, group}] = append([]byte(nil), data...)
	return nil
}

type memRemote struct {
	mu      sync.Mutex
	groups  map[key][]byte
	fail    map[key]error
	fetched []key
}

func newMemRemote() *memRemote {
	return &memRemote{
		groups: make(map[key][]byte),
		fail:   make(map[key]error),
	}
}

func (m *memRemote) Fetch(_ context.Context, archive, group int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{archive, group}
	m.fetched = append(m.fetched, k)
	if err := m.fail[k]; err != nil {
		return nil, err
	}
	b, ok := m.groups[k]
	if !ok {
		return nil, errors.Errorf("no group (%d, %d)", archive, group)
	}
	return b, nil
}

// fetchedGroups returns every fetch except the master catalog.
func (m *memRemote) fetchedGroups() []key {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []key
	for _, k := range m.fetched {
		if k != (key{model.MasterArchive, model.MasterArchive}) {
			out = append(out, k)
		}
	}
	return out
}

type memJournal struct {
	mu       sync.Mutex
	archives []ArchiveReport
	runs     []*Report
}

func (j *memJournal) RecordArchive(_ context.Context, _ uuid.UUID, a ArchiveReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.archives = append(j.archives, a)
	return nil
}

func (j *memJournal) RecordRun(_ context.Context, r *Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, r)
	return nil
}

func encode(t *testing.T, data []byte) []byte {
	t.Helper()
	b, err := codec.EncodeContainer(codec.Raw, data, 0, xtea.Key{})
	require.NoError(t, err)
	return b
}

func groupBytes(t *testing.T, archive int, g model.GroupDescriptor) []byte {
	return encode(t, []byte(fmt.Sprintf("group %d/%d v%d", archive, g.ID, g.Version)))
}

// fixture is a remote cache with a master catalog and a local cache
// seeded with some of its archives.
type fixture struct {
	local  *memCache
	remote *memRemote
	master []model.MasterEntry
}

func newFixture() *fixture {
	return &fixture{
		local:  newMemCache(),
		remote: newMemRemote(),
	}
}

// serve publishes cat as the remote catalog of archive, with every
// group it lists, and returns the encoded catalog.
func (f *fixture) serve(t *testing.T, archive int, cat *model.Catalog) []byte {
	t.Helper()
	b := encode(t, codec.EncodeCatalog(cat))
	f.remote.groups[key{model.MasterArchive, archive}] = b
	for _, g := range cat.Groups {
		f.remote.groups[key{archive, int(g.ID)}] = groupBytes(t, archive, g)
	}

	c, err := codec.DecodeContainer(b, nil)
	require.NoError(t, err)
	f.setEntry(archive, model.MasterEntry{CRC32: c.CRC32, Version: cat.Version})
	return b
}

// store writes cat and its groups to the local cache.
func (f *fixture) store(t *testing.T, archive int, cat *model.Catalog) {
	t.Helper()
	require.NoError(t, f.local.Put(model.MasterArchive, archive, encode(t, codec.EncodeCatalog(cat))))
	for _, g := range cat.Groups {
		require.NoError(t, f.local.Put(archive, int(g.ID), groupBytes(t, archive, g)))
	}
}

// synced publishes cat and stores the same catalog locally.
func (f *fixture) synced(t *testing.T, archive int, cat *model.Catalog) {
	f.serve(t, archive, cat)
	f.store(t, archive, cat)
}

func (f *fixture) setEntry(archive int, e model.MasterEntry) {
	for len(f.master) <= archive {
		f.master = append(f.master, model.MasterEntry{})
	}
	f.master[archive] = e
}

func (f *fixture) publishMaster(t *testing.T) {
	f.remote.groups[key{model.MasterArchive, model.MasterArchive}] = encode(t, codec.EncodeMaster(f.master))
}

func versionedCatalog(version uint32, groups ...model.GroupDescriptor) *model.Catalog {
	return &model.Catalog{Version: version, Groups: groups}
}

func TestUpdate_MissingArchiveFetchesEverything(t *testing.T) {
	f := newFixture()
	for a := 0; a < 3; a++ {
		f.synced(t, a, versionedCatalog(1, gd(0, 1, 1), gd(1, 1, 1)))
	}
	remoteCat := versionedCatalog(2, gd(0, 5, 1), gd(1, 6, 1), gd(7, 7, 3))
	catBytes := f.serve(t, 3, remoteCat)
	f.setEntry(3, model.MasterEntry{CRC32: 0xaa, Version: 2})
	f.publishMaster(t)

	journal := &memJournal{}
	rep, err := New(f.local, f.remote, WithJournal(journal)).Update(context.Background())
	require.NoError(t, err)

	require.ElementsMatch(t, []key{
		{model.MasterArchive, 3}, {3, 0}, {3, 1}, {3, 7},
	}, f.remote.fetchedGroups())

	stored, ok, err := f.local.Get(model.MasterArchive, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, catBytes, stored)

	for _, g := range remoteCat.Groups {
		b, ok, err := f.local.Get(3, int(g.ID))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, groupBytes(t, 3, g), b)
	}

	require.Equal(t, 4, rep.ArchivesChecked)
	require.Len(t, rep.Archives, 1)
	require.Equal(t, 3, rep.Archives[0].Archive)
	require.Equal(t, uint32(2), rep.Archives[0].CatalogVersion)
	require.Equal(t, 3, rep.GroupsFetched())
	require.NotZero(t, rep.Bytes())

	require.Len(t, journal.archives, 1)
	require.Len(t, journal.runs, 1)
	require.Equal(t, rep.RunID, journal.runs[0].RunID)
}

func TestUpdate_CurrentArchiveIsNotFetched(t *testing.T) {
	f := newFixture()
	for a := 0; a <= 5; a++ {
		f.synced(t, a, versionedCatalog(uint32(a+1), gd(0, 1, 1), gd(2, 2, 2)))
	}
	f.publishMaster(t)

	rep, err := New(f.local, f.remote).Update(context.Background())
	require.NoError(t, err)
	require.Empty(t, f.remote.fetchedGroups())
	require.Empty(t, rep.Archives)
	require.Equal(t, 6, rep.ArchivesChecked)
}

func TestUpdate_FetchesOnlyChangedGroups(t *testing.T) {
	f := newFixture()
	f.store(t, 0, versionedCatalog(1, gd(1, 10, 1), gd(2, 20, 1), gd(3, 30, 1)))
	f.serve(t, 0, versionedCatalog(2, gd(1, 10, 1), gd(3, 30, 2), gd(4, 40, 1)))
	f.publishMaster(t)

	rep, err := New(f.local, f.remote).Update(context.Background())
	require.NoError(t, err)

	require.ElementsMatch(t, []key{
		{model.MasterArchive, 0}, {0, 3}, {0, 4},
	}, f.remote.fetchedGroups())
	require.Equal(t, 2, rep.GroupsFetched())

	// Group 2 is no longer listed but stays on disk.
	_, ok, err := f.local.Get(0, 2)
	require.NoError(t, err)
	require.True(t, ok)

	cat, ok, err := LocalCatalog(f.local, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(2), cat.Version)
}

func TestUpdate_VersionOnlyChange(t *testing.T) {
	f := newFixture()
	cat := versionedCatalog(3, gd(0, 1, 1))
	f.synced(t, 0, cat)
	entry := f.master[0]
	entry.Version++
	f.setEntry(0, entry)
	f.publishMaster(t)

	_, err := New(f.local, f.remote).Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, []key{{model.MasterArchive, 0}}, f.remote.fetchedGroups())
}

func TestUpdate_UnreadableLocalCatalog(t *testing.T) {
	f := newFixture()
	f.serve(t, 0, versionedCatalog(1, gd(0, 1, 1)))
	f.publishMaster(t)
	require.NoError(t, f.local.Put(model.MasterArchive, 0, []byte{9, 9}))

	_, err := New(f.local, f.remote).Update(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []key{{model.MasterArchive, 0}, {0, 0}}, f.remote.fetchedGroups())
}

func TestUpdate_FetchFailureAbortsRun(t *testing.T) {
	f := newFixture()
	f.serve(t, 0, versionedCatalog(1, gd(0, 1, 1), gd(1, 1, 1)))
	f.publishMaster(t)

	errBoom := errors.New("connection reset")
	f.remote.fail[key{0, 1}] = errBoom

	journal := &memJournal{}
	_, err := New(f.local, f.remote, WithJournal(journal)).Update(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.Empty(t, journal.runs)

	// The catalog was stored before its groups were fetched.
	_, ok, err := f.local.Get(model.MasterArchive, 0)
	require.NoError(t, err)
	require.True(t, ok)
}

// failingCache fails reads of one group and counts writes.
type failingCache struct {
	*memCache
	failOn key
	err    error
	puts   int
}

func (c *failingCache) Get(archive, group int) ([]byte, bool, error) {
	if (key{archive, group}) == c.failOn {
		return nil, false, c.err
	}
	return c.memCache.Get(archive, group)
}

func (c *failingCache) Put(archive, group int, data []byte) error {
	c.memCache.mu.Lock()
	c.puts++
	c.memCache.mu.Unlock()
	return c.memCache.Put(archive, group, data)
}

func TestUpdate_LocalReadFailureStartsNoUpdate(t *testing.T) {
	f := newFixture()
	f.serve(t, 0, versionedCatalog(1, gd(0, 1, 1)))
	f.serve(t, 1, versionedCatalog(1, gd(0, 1, 1)))
	f.publishMaster(t)

	errDisk := errors.New("read index 255")
	local := &failingCache{
		memCache: f.local,
		failOn:   key{model.MasterArchive, 1},
		err:      errDisk,
	}

	_, err := New(local, f.remote).Update(context.Background())
	require.ErrorIs(t, err, errDisk)

	// Archive 0 is stale but must not be updated once the run failed.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, f.remote.fetchedGroups())
	local.memCache.mu.Lock()
	defer local.memCache.mu.Unlock()
	require.Zero(t, local.puts)
}

func TestUpdate_MasterFetchFailure(t *testing.T) {
	f := newFixture()
	_, err := New(f.local, f.remote).Update(context.Background())
	require.Error(t, err)
}

func TestUpdateArchive(t *testing.T) {
	f := newFixture()
	f.store(t, 4, versionedCatalog(1, gd(1, 10, 1), gd(2, 20, 1), gd(3, 30, 1)))
	f.serve(t, 4, versionedCatalog(2, gd(1, 10, 1), gd(3, 30, 2), gd(4, 40, 1)))

	rep, err := New(f.local, f.remote).UpdateArchive(context.Background(), 4)
	require.NoError(t, err)

	require.ElementsMatch(t, []key{
		{model.MasterArchive, 4}, {4, 3}, {4, 4},
	}, f.remote.fetchedGroups())
	require.Len(t, rep.Archives, 1)
	require.Equal(t, 2, rep.Archives[0].GroupsFetched)
	require.Equal(t, 3, rep.Archives[0].Groups)
}

func TestUpdateArchive_OutOfRange(t *testing.T) {
	u := New(newMemCache(), newMemRemote())
	_, err := u.UpdateArchive(context.Background(), model.MasterArchive)
	require.Error(t, err)
	_, err = u.UpdateArchive(context.Background(), -1)
	require.Error(t, err)
}

func TestRemoteHelpers(t *testing.T) {
	f := newFixture()
	cat := versionedCatalog(9, gd(2, 3, 4))
	f.serve(t, 1, cat)
	f.publishMaster(t)

	master, err := RemoteMaster(context.Background(), f.remote)
	require.NoError(t, err)
	require.Len(t, master, 2)
	require.Equal(t, uint32(9), master[1].Version)

	got, err := RemoteCatalog(context.Background(), f.remote, 1)
	require.NoError(t, err)
	require.Equal(t, cat.Groups[0].ID, got.Groups[0].ID)

	g, err := RemoteGroup(context.Background(), f.remote, 1, 2, nil)
	require.NoError(t, err)
	require.Equal(t, "group 1/2 v4", string(g.Data))
}

func TestLocalHelpers(t *testing.T) {
	local := newMemCache()

	_, ok, err := LocalCatalog(local, 0)
	require.NoError(t, err)
	require.False(t, ok)

	k := xtea.Key{1, 2, 3, 4}
	b, err := codec.EncodeContainer(codec.Gzip, []byte("secret payload!!"), 7, k)
	require.NoError(t, err)
	require.NoError(t, local.Put(2, 5, b))

	c, ok, err := LocalGroup(local, 2, 5, &k)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "secret payload!!", string(c.Data))
	require.Equal(t, uint32(7), c.Version)

	require.NoError(t, local.Put(model.MasterArchive, 0, []byte{0}))
	_, _, err = LocalCatalog(local, 0)
	require.ErrorIs(t, err, codec.ErrFormat)
}
