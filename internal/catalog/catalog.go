// Package catalog keeps the worlds clients are working with in memory.
// It is owned by the server loop and is not safe for concurrent use.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/worldforge/server/internal/persist"
	"github.com/worldforge/server/internal/world"
)

// ErrNotFound is returned when a world is neither cached nor stored.
var ErrNotFound = errors.New("world not found")

// Store is the durable side of the catalog. *persist.WorldRepo satisfies it.
type Store interface {
	Load(ctx context.Context, name string) (*world.World, error)
	List(ctx context.Context) ([]persist.WorldRow, error)
}

// Summary describes one world for listings.
type Summary struct {
	Name   string
	Seed   int64
	Width  int
	Height int
	Step   string
	Layers []string
	Stored bool // present in the database
	Dirty  bool // has changes not yet saved
}

type Catalog struct {
	cache *lru.Cache[string, *world.World]
	dirty map[string]bool
	store Store
	log   *zap.Logger
}

// New creates a catalog holding at most size worlds. store may be nil, in
// which case worlds only live in memory.
func New(size int, store Store, log *zap.Logger) (*Catalog, error) {
	c := &Catalog{
		dirty: make(map[string]bool),
		store: store,
		log:   log,
	}
	cache, err := lru.NewWithEvict[string, *world.World](size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	c.cache = cache
	return c, nil
}

func (c *Catalog) onEvict(name string, _ *world.World) {
	if c.dirty[name] {
		c.log.Warn("evicted unsaved world", zap.String("world", name))
	}
	delete(c.dirty, name)
}

// Put adds or replaces a world. dirty marks it for the next save. It reports
// whether a different world of the same name was cached.
func (c *Catalog) Put(w *world.World, dirty bool) bool {
	prev, ok := c.cache.Peek(w.Name)
	replaced := ok && prev != w
	c.cache.Add(w.Name, w)
	if dirty {
		c.dirty[w.Name] = true
	} else {
		delete(c.dirty, w.Name)
	}
	return replaced
}

// Peek returns a cached world without touching the store or the recency.
func (c *Catalog) Peek(name string) (*world.World, bool) {
	return c.cache.Peek(name)
}

// Get returns the named world, loading it from the store on a cache miss.
func (c *Catalog) Get(ctx context.Context, name string) (*world.World, error) {
	if w, ok := c.cache.Get(name); ok {
		return w, nil
	}
	if c.store == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	w, err := c.store.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load world %s: %w", name, err)
	}
	if w == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	c.log.Debug("world loaded into catalog", zap.String("world", name))
	c.cache.Add(name, w)
	return w, nil
}

// MarkClean clears the dirty flag after a successful save.
func (c *Catalog) MarkClean(name string) {
	delete(c.dirty, name)
}

// MarkDirty flags a cached world for saving.
func (c *Catalog) MarkDirty(name string) {
	if c.cache.Contains(name) {
		c.dirty[name] = true
	}
}

// Dirty returns the cached worlds with unsaved changes, sorted by name.
func (c *Catalog) Dirty() []*world.World {
	names := make([]string, 0, len(c.dirty))
	for n := range c.dirty {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*world.World, 0, len(names))
	for _, n := range names {
		if w, ok := c.cache.Peek(n); ok {
			out = append(out, w)
		}
	}
	return out
}

// IsDirty reports whether name has unsaved changes.
func (c *Catalog) IsDirty(name string) bool { return c.dirty[name] }

func (c *Catalog) Len() int { return c.cache.Len() }

// List merges stored worlds with the ones only held in memory. Cached
// entries take precedence since they may be newer than the database.
func (c *Catalog) List(ctx context.Context) ([]Summary, error) {
	byName := make(map[string]Summary)
	if c.store != nil {
		rows, err := c.store.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stored worlds: %w", err)
		}
		for _, r := range rows {
			byName[r.Name] = Summary{
				Name: r.Name, Seed: r.Seed, Width: r.Width, Height: r.Height,
				Step: r.Step, Layers: r.Layers, Stored: true,
			}
		}
	}
	for _, name := range c.cache.Keys() {
		w, ok := c.cache.Peek(name)
		if !ok {
			continue
		}
		_, stored := byName[name]
		byName[name] = Summary{
			Name: w.Name, Seed: w.Seed, Width: w.Width(), Height: w.Height(),
			Step: w.Params.Step.Name, Layers: w.Layers(), Stored: stored, Dirty: c.dirty[name],
		}
	}
	out := make([]Summary, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
