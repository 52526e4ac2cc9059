package codec

import (
	"encoding/binary"

	"github.com/bmyte/jagcache/lib/buffer"
	"github.com/pkg/errors"
)

// Split slices the data of a multi-file group into its files. The data
// ends with a size table of chunkCount*fileCount 4-byte sizes (delta
// coded within each chunk) followed by a 1-byte chunk count; a file's
// chunks are concatenated in chunk order. A single-file group is
// returned unchanged.
func Split(blob []byte, fileCount int) ([][]byte, error) {
	if fileCount < 1 {
		return nil, errors.Wrapf(ErrFormat, "bundle: invalid file count %d", fileCount)
	}
	if fileCount == 1 {
		return [][]byte{blob}, nil
	}
	if len(blob) == 0 {
		return nil, errors.Wrap(ErrFormat, "bundle: missing chunk count")
	}

	chunkCount := int(blob[len(blob)-1])
	tableStart := len(blob) - 1 - chunkCount*fileCount*4
	if tableStart < 0 {
		return nil, errors.Wrapf(ErrFormat, "bundle: size table of %d chunks exceeds %d bytes", chunkCount, len(blob))
	}

	chunks := make([][][]byte, fileCount)
	for f := range chunks {
		chunks[f] = make([][]byte, 0, chunkCount)
	}

	table := blob[tableStart : len(blob)-1]
	pos := 0
	for c := 0; c < chunkCount; c++ {
		var size int
		for f := 0; f < fileCount; f++ {
			size += int(int32(binary.BigEndian.Uint32(table)))
			table = table[4:]
			if size < 0 || pos+size > tableStart {
				return nil, errors.Wrapf(ErrFormat, "bundle: chunk %d of file %d out of bounds", c, f)
			}
			chunks[f] = append(chunks[f], blob[pos:pos+size:pos+size])
			pos += size
		}
	}

	files := make([][]byte, fileCount)
	for f := range files {
		files[f] = buffer.Join(chunks[f]...)
	}

	return files, nil
}

// Merge is the inverse of Split, always producing a single chunk.
func Merge(files [][]byte) []byte {
	if len(files) == 1 {
		return files[0]
	}

	size := 1
	for _, f := range files {
		size += 4 + len(f)
	}

	out := buffer.New(size)
	for _, f := range files {
		_, _ = out.Write(f)
	}

	last := 0
	for _, f := range files {
		out.WriteUint32(uint32(int32(len(f) - last)))
		last = len(f)
	}
	_ = out.WriteByte(1)

	return out.Bytes()
}
