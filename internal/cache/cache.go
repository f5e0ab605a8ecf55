// Package cache persists parsed datasets as gob snapshots on disk, fronted
// by a small in-memory LRU. The parser works correctly with no cache at
// all; this only short-circuits re-parsing.
package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/wegman-software/osmtab/internal/logger"
	"github.com/wegman-software/osmtab/internal/pbf"
	"github.com/wegman-software/osmtab/internal/tags"
)

func init() {
	// Geometry cells are interface-typed inside rows; gob needs the
	// concrete types up front.
	gob.Register(orb.Point{})
	gob.Register(orb.LineString{})
	gob.Register(orb.MultiLineString{})
	gob.Register(orb.Ring{})
	gob.Register(orb.Polygon{})
	gob.Register(orb.MultiPolygon{})
	gob.Register(orb.Collection{})
	gob.Register(tags.Mapping{})
}

// Cache is an explicitly lifecycled dataset cache rooted at one directory.
type Cache struct {
	dir string
	mem *lru.Cache[string, pbf.Dataset]
	log *zap.Logger
}

// New creates a cache under dir keeping up to memEntries parsed datasets in
// memory.
func New(dir string, memEntries int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if memEntries < 1 {
		memEntries = 4
	}
	mem, err := lru.New[string, pbf.Dataset](memEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, mem: mem, log: logger.Named("cache")}, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".gob")
}

// Load returns the cached dataset for key, or false when absent. A snapshot
// that fails to decode is treated as absent, never as valid data.
func (c *Cache) Load(key string) (pbf.Dataset, bool) {
	if ds, ok := c.mem.Get(key); ok {
		return ds, true
	}

	f, err := os.Open(c.path(key))
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var ds pbf.Dataset
	if err := gob.NewDecoder(f).Decode(&ds); err != nil {
		c.log.Warn("Discarding unreadable cache snapshot",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	c.mem.Add(key, ds)
	return ds, true
}

// Store snapshots the dataset for key, writing through a temp file so a
// crash never leaves a truncated snapshot behind.
func (c *Cache) Store(key string, ds pbf.Dataset) error {
	tmp := c.path(key) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create cache snapshot: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(ds); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		os.Remove(tmp)
		return err
	}

	c.mem.Add(key, ds)
	return nil
}

// Invalidate drops key from memory and disk.
func (c *Cache) Invalidate(key string) error {
	c.mem.Remove(key)
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
