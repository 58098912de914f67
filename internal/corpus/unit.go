package corpus

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
)

// Unit is a retrievable chunk of the corpus with a stable identifier.
//
// The ID is deterministic over (source location, content), so re-indexing an
// unchanged snapshot reproduces the same ids. Units are immutable once
// indexed; re-indexing replaces them wholesale.
type Unit struct {
	ID       string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// UnitID derives the stable unit identifier from its location and content.
func UnitID(location, content string) string {
	sum := sha256.Sum256([]byte(location + "\x00" + content))
	return fmt.Sprintf("%x", sum)[:16]
}

// Location returns the unit's source location recorded at chunking time.
func (u Unit) Location() string {
	return fmt.Sprintf("%s:%s-%s", u.Metadata["source"], u.Metadata["start_line"], u.Metadata["end_line"])
}

// Catalog maps unit ids back to full Unit records. The vector index only
// stores (id, vector, metadata); retrieval needs the text too.
type Catalog struct {
	mu      sync.RWMutex
	units   map[string]Unit
	bySrc   map[string]map[string]struct{}
}

// NewCatalog creates an empty unit catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		units: make(map[string]Unit),
		bySrc: make(map[string]map[string]struct{}),
	}
}

// Put stores a unit, replacing any previous record with the same id.
func (c *Catalog) Put(unit Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.units[unit.ID] = unit
	if src := unit.Metadata["source"]; src != "" {
		if c.bySrc[src] == nil {
			c.bySrc[src] = make(map[string]struct{})
		}
		c.bySrc[src][unit.ID] = struct{}{}
	}
}

// Remove forgets the unit with the given id.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if unit, ok := c.units[id]; ok {
		if set := c.bySrc[unit.Metadata["source"]]; set != nil {
			delete(set, id)
		}
		delete(c.units, id)
	}
}

// IDsBySource returns the ids of all units chunked from one source, in
// lexical order.
func (c *Catalog) IDsBySource(source string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.bySrc[source]))
	for id := range c.bySrc[source] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns the unit for id, if known.
func (c *Catalog) Get(id string) (Unit, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	unit, ok := c.units[id]
	return unit, ok
}

// Len returns the number of cataloged units.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.units)
}

// IDs returns all cataloged unit ids in lexical order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.units))
	for id := range c.units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
