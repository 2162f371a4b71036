// Package techset maps opaque technology ids to display names. The mapping
// lives in the document store and is loaded lazily, once, per cache instance.
// The cache is an explicitly-constructed dependency — callers receive it by
// injection, there is no package-level singleton.
package techset

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Collection holds the tech set documents.
const Collection = "tech_sets"

// catalogID is the single document carrying the full id → name catalog.
const catalogID = "catalog"

// Status is the cache lifecycle.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusError   Status = "error"
)

// DocumentStore is the read side of the document store this cache needs.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, out interface{}) (bool, error)
}

type catalogDoc struct {
	Items []struct {
		ID   string `bson:"id"   json:"id"`
		Name string `bson:"name" json:"name"`
	} `bson:"items" json:"items"`
}

// Cache is a read-through display-name cache. Lookup never blocks on I/O and
// never fails: on any miss (not loaded yet, load failed, unknown id) it
// degrades to returning the raw id, so display surfaces keep rendering.
type Cache struct {
	docs DocumentStore
	log  *zap.Logger

	mu     sync.Mutex
	status Status
	names  map[string]string
}

func New(docs DocumentStore, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{docs: docs, log: log, status: StatusEmpty, names: map[string]string{}}
}

// Status returns the current cache status.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Lookup resolves a display name for id, triggering a background load on
// first use. Returns the raw id until the catalog is available.
func (c *Cache) Lookup(ctx context.Context, id string) string {
	c.mu.Lock()
	if c.status == StatusEmpty {
		c.status = StatusLoading
		go c.load(context.WithoutCancel(ctx))
	}
	name, found := c.names[id]
	c.mu.Unlock()

	if !found || name == "" {
		return id
	}
	return name
}

// Load populates the cache synchronously. Useful at startup; Lookup callers
// do not need it.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusLoading {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusLoading
	c.mu.Unlock()

	return c.loadOnce(ctx)
}

func (c *Cache) load(ctx context.Context) {
	if err := c.loadOnce(ctx); err != nil {
		c.log.Warn("tech set catalog load failed, lookups fall back to raw ids", zap.Error(err))
	}
}

func (c *Cache) loadOnce(ctx context.Context) error {
	var doc catalogDoc
	found, err := c.docs.Get(ctx, Collection, catalogID, &doc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.status = StatusError
		return err
	}

	names := make(map[string]string, len(doc.Items))
	if found {
		for _, item := range doc.Items {
			if item.ID != "" {
				names[item.ID] = item.Name
			}
		}
	}
	c.names = names
	c.status = StatusLoaded
	return nil
}
