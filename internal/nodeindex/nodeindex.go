// Package nodeindex stores node coordinates in a memory-mapped sparse file,
// keyed directly by node ID for O(1) lookup while ways are assembled.
package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	// lat (int32) + lon (int32), fixed-point at 1e7.
	entrySize = 8
	// Upper bound on OSM node IDs; the backing file is sparse so disk
	// usage tracks only the IDs actually written.
	maxNodeID = 16_000_000_000
)

// Index is a memory-mapped node coordinate store. A node's entry lives at
// offset nodeID*8.
type Index struct {
	file *os.File
	data mmap.MMap
	size int64
}

// Create makes a fresh writable index at path, truncating any existing one.
func Create(path string) (*Index, error) {
	size := int64(maxNodeID) * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create node index: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size node index: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map node index: %w", err)
	}

	return &Index{file: f, data: data, size: size}, nil
}

// Open opens an existing index read-only.
func Open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open node index: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat node index: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to map node index: %w", err)
	}

	return &Index{file: f, data: data, size: info.Size()}, nil
}

// Put stores a node's coordinates. IDs outside the supported range are
// ignored.
func (ix *Index) Put(nodeID int64, lat, lon float64) {
	if nodeID < 0 || nodeID >= maxNodeID {
		return
	}
	offset := nodeID * entrySize
	binary.LittleEndian.PutUint32(ix.data[offset:], uint32(int32(lat*1e7)))
	binary.LittleEndian.PutUint32(ix.data[offset+4:], uint32(int32(lon*1e7)))
}

// Get retrieves a node's coordinates. The zero entry doubles as "absent";
// a node at exactly (0,0) is indistinguishable, which is acceptable for
// real-world data.
func (ix *Index) Get(nodeID int64) (lat, lon float64, ok bool) {
	if nodeID < 0 || nodeID >= maxNodeID {
		return 0, 0, false
	}
	offset := nodeID * entrySize
	if offset+entrySize > ix.size {
		return 0, 0, false
	}

	latInt := int32(binary.LittleEndian.Uint32(ix.data[offset:]))
	lonInt := int32(binary.LittleEndian.Uint32(ix.data[offset+4:]))
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}
	return float64(latInt) / 1e7, float64(lonInt) / 1e7, true
}

// Sync flushes written entries to disk.
func (ix *Index) Sync() error {
	return ix.data.Flush()
}

// Close unmaps and closes the index.
func (ix *Index) Close() error {
	if err := ix.data.Unmap(); err != nil {
		ix.file.Close()
		return err
	}
	return ix.file.Close()
}
