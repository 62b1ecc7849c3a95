// Package memory provides an in-memory implementation of the item store used
// for tests and ephemeral environments.
package memory

import (
	"context"
	"itemcore/pkg/domain"
	"sort"
	"sync"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.ItemStore = (*Store)(nil)

type (
	// ItemID aliases domain.ItemID.
	ItemID = domain.ItemID
	// ItemData aliases domain.ItemData.
	ItemData = domain.ItemData
	// Attributes aliases domain.Attributes.
	Attributes = domain.Attributes
)

// DefaultFirstID is the first id handed out by an empty store. Lower ids are
// reserved for well-known locations.
const DefaultFirstID ItemID = 100000

type memoryState struct {
	items      map[ItemID]ItemData
	attributes map[ItemID]Attributes
	// byLocation indexes child ids per container.
	byLocation map[ItemID]map[ItemID]struct{}
	nextID     ItemID
}

func newMemoryState(first ItemID) memoryState {
	return memoryState{
		items:      make(map[ItemID]ItemData),
		attributes: make(map[ItemID]Attributes),
		byLocation: make(map[ItemID]map[ItemID]struct{}),
		nextID:     first,
	}
}

func (s *memoryState) index(id, location ItemID) {
	children, ok := s.byLocation[location]
	if !ok {
		children = make(map[ItemID]struct{})
		s.byLocation[location] = children
	}
	children[id] = struct{}{}
}

func (s *memoryState) unindex(id, location ItemID) {
	children, ok := s.byLocation[location]
	if !ok {
		return
	}
	delete(children, id)
	if len(children) == 0 {
		delete(s.byLocation, location)
	}
}

// Store implements domain.ItemStore in process memory.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	first ItemID
}

// Option configures a Store.
type Option func(*Store)

// WithFirstID overrides the first id assigned by NewItem.
func WithFirstID(id ItemID) Option {
	return func(s *Store) {
		if id > 0 {
			s.first = id
		}
	}
}

// NewStore constructs an empty in-memory item store.
func NewStore(opts ...Option) *Store {
	s := &Store{first: DefaultFirstID}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.state = newMemoryState(s.first)
	return s
}

// NewItem inserts a row and assigns the next id.
func (s *Store) NewItem(_ context.Context, data ItemData) (ItemID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.state.nextID
	s.state.nextID++
	s.state.items[id] = data
	s.state.index(id, data.LocationID)
	return id, nil
}

// LoadItem returns the stored row.
func (s *Store) LoadItem(_ context.Context, id ItemID) (ItemData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.state.items[id]
	if !ok {
		return ItemData{}, domain.ItemNotFound(id)
	}
	return data, nil
}

// SaveItem overwrites an existing row.
func (s *Store) SaveItem(_ context.Context, id ItemID, data ItemData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.state.items[id]
	if !ok {
		return domain.ItemNotFound(id)
	}
	if prev.LocationID != data.LocationID {
		s.state.unindex(id, prev.LocationID)
		s.state.index(id, data.LocationID)
	}
	s.state.items[id] = data
	return nil
}

// DeleteItem removes the row if present.
func (s *Store) DeleteItem(_ context.Context, id ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.state.items[id]
	if !ok {
		return nil
	}
	s.state.unindex(id, prev.LocationID)
	delete(s.state.items, id)
	return nil
}

// GetItemContents lists the ids located in id, ascending.
func (s *Store) GetItemContents(_ context.Context, id ItemID) ([]ItemID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	children := s.state.byLocation[id]
	out := make([]ItemID, 0, len(children))
	for child := range children {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LoadAttributes returns a copy of the item's attributes. Items without
// stored attributes yield an empty set.
func (s *Store) LoadAttributes(_ context.Context, id ItemID) (Attributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs := s.state.attributes[id].Clone()
	if attrs == nil {
		attrs = Attributes{}
	}
	return attrs, nil
}

// SaveAttributes replaces the item's attribute set.
func (s *Store) SaveAttributes(_ context.Context, id ItemID, attrs Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.items[id]; !ok {
		return domain.ItemNotFound(id)
	}
	s.state.attributes[id] = attrs.Clone()
	return nil
}

// DeleteAttributes drops every attribute of the item.
func (s *Store) DeleteAttributes(_ context.Context, id ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.attributes, id)
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// Len reports the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.items)
}
