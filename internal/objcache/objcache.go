// Package objcache provides the two bounded in-memory caches the Path
// Resolver lays in front of the Object Access Adapter: a count-bounded
// cache of decoded trees (--tree-cache) and a byte-size-bounded cache of
// small blob content (--blob-small-cache). Both are content-addressed by
// Git object id, following the same addressing idiom as the teacher's
// on-disk TreeCache/CAS, but kept in memory since the backing store here
// is a local repository rather than a remote fetched-over-HTTP one.
package objcache

import (
	"container/list"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/gitsnapfs/gitsnapfs/internal/gitstore"
)

// TreeCache bounds the number of decoded trees kept in memory.
type TreeCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[plumbing.Hash]*list.Element
}

type treeEntry struct {
	oid     plumbing.Hash
	entries []gitstore.TreeEntry
}

// NewTreeCache creates a tree cache holding up to capacity entries. A
// capacity of 0 disables caching.
func NewTreeCache(capacity int) *TreeCache {
	return &TreeCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[plumbing.Hash]*list.Element),
	}
}

// Get returns the cached entries for oid, if present.
func (c *TreeCache) Get(oid plumbing.Hash) ([]gitstore.TreeEntry, bool) {
	if c.capacity == 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[oid]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*treeEntry).entries, true
}

// Add inserts entries for oid, evicting the least recently used tree if
// the cache is at capacity.
func (c *TreeCache) Add(oid plumbing.Hash, entries []gitstore.TreeEntry) {
	if c.capacity == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[oid]; ok {
		c.ll.MoveToFront(e)
		e.Value.(*treeEntry).entries = entries
		return
	}

	e := c.ll.PushFront(&treeEntry{oid: oid, entries: entries})
	c.items[oid] = e

	for c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *TreeCache) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	delete(c.items, oldest.Value.(*treeEntry).oid)
}

// BlobCache bounds the total byte size of cached small blob contents.
type BlobCache struct {
	mu          sync.Mutex
	maxBytes    uint64
	usedBytes   uint64
	ll          *list.List
	items       map[plumbing.Hash]*list.Element
}

type blobEntry struct {
	oid  plumbing.Hash
	data []byte
}

// NewBlobCache creates a blob cache holding up to maxBytes of content. A
// maxBytes of 0 disables caching.
func NewBlobCache(maxBytes uint64) *BlobCache {
	return &BlobCache{
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[plumbing.Hash]*list.Element),
	}
}

// Get returns the cached content for oid, if present.
func (c *BlobCache) Get(oid plumbing.Hash) ([]byte, bool) {
	if c.maxBytes == 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[oid]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(e)
	return e.Value.(*blobEntry).data, true
}

// Add inserts content for oid if it fits within maxBytes, evicting
// least-recently-used entries as needed. Content larger than the whole
// cache is simply not cached.
func (c *BlobCache) Add(oid plumbing.Hash, data []byte) {
	if c.maxBytes == 0 || uint64(len(data)) > c.maxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[oid]; ok {
		c.usedBytes -= uint64(len(e.Value.(*blobEntry).data))
		c.ll.Remove(e)
		delete(c.items, oid)
	}

	e := c.ll.PushFront(&blobEntry{oid: oid, data: data})
	c.items[oid] = e
	c.usedBytes += uint64(len(data))

	for c.usedBytes > c.maxBytes {
		c.evictOldest()
	}
}

func (c *BlobCache) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	be := oldest.Value.(*blobEntry)
	c.usedBytes -= uint64(len(be.data))
	c.ll.Remove(oldest)
	delete(c.items, be.oid)
}
