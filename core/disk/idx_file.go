package disk

import (
	"io"
	"os"

	"github.com/bmyte/jagcache/lib/buffer"
	"github.com/pkg/errors"
)

// ExtentSize is the size of one extent record in an index file.
const ExtentSize = 6

// extent locates a group's bytes in the payload log.
type extent struct {
	Length      uint32
	StartSector uint32
}

// idxFile is the extent index of one archive: record g sits at g*6.
type idxFile struct {
	f   *os.File
	buf [ExtentSize]byte
}

func openIdxFile(path string) (*idxFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}

	return &idxFile{f: f}, nil
}

// size returns the number of records the file can hold.
func (i *idxFile) size() (int, error) {
	fi, err := i.f.Stat()
	if err != nil {
		return 0, err
	}

	return int(fi.Size() / ExtentSize), nil
}

func (i *idxFile) read(group int) (extent, bool, error) {
	pos := int64(group) * ExtentSize
	n, err := i.f.ReadAt(i.buf[:], pos)
	if n < ExtentSize {
		if err == nil || err == io.EOF {
			return extent{}, false, nil
		}
		return extent{}, false, errors.Wrapf(err, "read extent %d", group)
	}

	e := extent{
		Length:      buffer.GetMedium(i.buf[0:3]),
		StartSector: buffer.GetMedium(i.buf[3:6]),
	}
	if e.Length == 0 && e.StartSector == 0 {
		return extent{}, false, nil
	}

	return e, true, nil
}

func (i *idxFile) write(group int, e extent) error {
	buffer.PutMedium(i.buf[0:3], e.Length)
	buffer.PutMedium(i.buf[3:6], e.StartSector)

	_, err := i.f.WriteAt(i.buf[:], int64(group)*ExtentSize)
	return errors.Wrapf(err, "write extent %d", group)
}

func (i *idxFile) Close() error {
	return i.f.Close()
}
