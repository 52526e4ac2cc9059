package disk

import (
	"fmt"
	"os"
	fp "path/filepath"
	"sync"

	"github.com/bmyte/jagcache/core/model"
	"github.com/bmyte/jagcache/lib/logger"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	DatFileName = "main_file_cache.dat2"
	IdxFileName = "main_file_cache.idx"

	MaxGroup = 0xffff
)

var log, _ = logger.New("disk")

var (
	ErrCorrupt      = errors.New("disk: corrupt sector chain")
	ErrStoreClosed  = errors.New("disk: store closed")
	ErrOutOfRange   = errors.New("disk: archive or group out of range")
	ErrGroupTooLong = errors.New("disk: group exceeds 24-bit length")
)

// Store is the local cache: one payload log shared by every archive
// plus one extent index per archive. Index files are opened on first
// use and kept open until Close. Every method holds the store lock, the
// append position of the log being shared state.
type Store struct {
	mu     sync.Mutex
	dir    string
	dat    *datFile
	idx    [model.MaxArchives]*idxFile
	closed bool
}

// Open opens the store in dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, errors.Wrapf(err, "create cache directory %s", dir)
	}

	dat, err := openDatFile(fp.Join(dir, DatFileName))
	if err != nil {
		return nil, errors.Wrap(err, "open payload log")
	}

	log.Debugw("open", "dir", dir)
	return &Store{
		dir: dir,
		dat: dat,
	}, nil
}

func IdxFilePath(dir string, archive int) string {
	return fp.Join(dir, fmt.Sprintf("%s%d", IdxFileName, archive))
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) idxFile(archive int) (*idxFile, error) {
	if f := s.idx[archive]; f != nil {
		return f, nil
	}

	f, err := openIdxFile(IdxFilePath(s.dir, archive))
	if err != nil {
		return nil, errors.Wrapf(err, "open index %d", archive)
	}

	s.idx[archive] = f
	return f, nil
}

func checkRange(archive, group int) error {
	if archive < 0 || archive >= model.MaxArchives || group < 0 || group > MaxGroup {
		return errors.Wrapf(ErrOutOfRange, "archive %d group %d", archive, group)
	}

	return nil
}

// Get returns the encoded bytes of a group. The bool is false when the
// group was never stored.
func (s *Store) Get(archive, group int) ([]byte, bool, error) {
	if err := checkRange(archive, group); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}

	idx, err := s.idxFile(archive)
	if err != nil {
		return nil, false, err
	}

	e, exists, err := idx.read(group)
	if err != nil || !exists {
		return nil, false, err
	}

	data, err := s.dat.read(archive, group, e.Length, e.StartSector)
	if err != nil {
		return nil, false, err
	}

	groupsRead.Inc()
	return data, true, nil
}

// Put appends data as a new sector chain and points the group's extent
// at it. The previous chain, if any, is left orphaned in the log.
func (s *Store) Put(archive, group int, data []byte) error {
	if err := checkRange(archive, group); err != nil {
		return err
	}
	if len(data) > maxMedium {
		return errors.Wrapf(ErrGroupTooLong, "archive %d group %d: %d bytes", archive, group, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	idx, err := s.idxFile(archive)
	if err != nil {
		return err
	}

	start, err := s.dat.append(archive, group, data)
	if err != nil {
		return errors.Wrapf(err, "append archive %d group %d", archive, group)
	}

	if err := idx.write(group, extent{Length: uint32(len(data)), StartSector: start}); err != nil {
		return err
	}

	groupsWritten.Inc()
	log.Debugw("put", "archive", archive, "group", group, "bytes", len(data), "sector", start)
	return nil
}

// ArchiveCount returns the number of extent records in the master
// index, i.e. one past the highest archive whose catalog slot exists.
func (s *Store) ArchiveCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	idx, err := s.idxFile(model.MasterArchive)
	if err != nil {
		return 0, err
	}

	return idx.size()
}

// Close closes the payload log and every index file that was opened.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.dat.Close()
	for i, f := range s.idx {
		if f != nil {
			err = multierr.Append(err, f.Close())
			s.idx[i] = nil
		}
	}

	return err
}

func (s *Store) String() string {
	return fmt.Sprintf("Store(%s)", s.dir)
}
