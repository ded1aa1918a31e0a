package asset

import (
	"errors"
	"sync"
)

// Store errors.
var (
	// ErrNotFound is returned when an asset ID is not present in the store.
	ErrNotFound = errors.New("asset: not found")
)

// Cache is an optional spill backend for a Store. Implementations persist
// asset bytes outside the session's memory (local disk, object storage).
// A Cache miss is reported as ErrNotFound.
type Cache interface {
	// Load returns the bytes and name for an asset previously stored.
	Load(id ID) (data []byte, name string, err error)

	// Store persists an asset's bytes. Storing an ID that already exists
	// is a no-op.
	Store(a *Asset) error
}

// Store is a content-addressed asset registry. Entries are write-once:
// once an ID is inserted its bytes never change, so reads after insertion
// are safe without coordination beyond the store's own lock.
type Store struct {
	mu     sync.RWMutex
	assets map[ID]*Asset

	// cache, when set, receives a copy of every inserted asset and is
	// consulted on Get misses. Purely an optimization; correctness does
	// not depend on it.
	cache Cache
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{assets: make(map[ID]*Asset)}
}

// NewStoreWithCache creates a Store backed by a spill cache.
func NewStoreWithCache(cache Cache) *Store {
	return &Store{assets: make(map[ID]*Asset), cache: cache}
}

// Put computes the content ID for data and registers the asset if it is not
// already present. If an asset with the same ID exists the call is a no-op
// and the existing ID is returned.
func (s *Store) Put(data []byte, name string) ID {
	a := New(data, name)
	s.PutAsset(a)
	return a.ID
}

// PutAsset registers a fully constructed asset. Returns true if the asset
// was inserted, false if an asset with the same ID was already present.
func (s *Store) PutAsset(a *Asset) bool {
	s.mu.Lock()
	if _, ok := s.assets[a.ID]; ok {
		s.mu.Unlock()
		return false
	}
	s.assets[a.ID] = a
	s.mu.Unlock()

	if s.cache != nil {
		// Best effort; a failed spill does not affect the in-memory entry.
		_ = s.cache.Store(a)
	}
	return true
}

// Get returns the asset for id, consulting the spill cache on a miss.
// Returns ErrNotFound if the asset is not held anywhere.
func (s *Store) Get(id ID) (*Asset, error) {
	s.mu.RLock()
	a, ok := s.assets[id]
	s.mu.RUnlock()
	if ok {
		return a, nil
	}

	if s.cache != nil {
		data, name, err := s.cache.Load(id)
		if err == nil {
			a = &Asset{ID: id, Name: name, Bytes: data}
			s.mu.Lock()
			// Another goroutine may have inserted meanwhile; keep the first.
			if existing, ok := s.assets[id]; ok {
				a = existing
			} else {
				s.assets[id] = a
			}
			s.mu.Unlock()
			return a, nil
		}
	}
	return nil, ErrNotFound
}

// Contains reports whether the asset is present in memory.
func (s *Store) Contains(id ID) bool {
	s.mu.RLock()
	_, ok := s.assets[id]
	s.mu.RUnlock()
	return ok
}

// Remove drops an asset from the in-memory map. The spill cache, if any,
// is left untouched.
func (s *Store) Remove(id ID) {
	s.mu.Lock()
	delete(s.assets, id)
	s.mu.Unlock()
}

// IDs returns the IDs of the assets held in memory, in no particular
// order.
func (s *Store) IDs() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ID, 0, len(s.assets))
	for id := range s.assets {
		out = append(out, id)
	}
	return out
}

// Len returns the number of assets held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}
