package item

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"itemcore/pkg/domain"
)

// Item is one live node of the item graph. Handles returned by the Factory
// carry a reference that the holder gives back with Release.
type Item struct {
	factory *Factory
	id      domain.ItemID
	typ     domain.Type
	kind    Kind

	refs           atomic.Int64
	destroyed      atomic.Bool
	deleted        atomic.Bool
	contentsLoaded atomic.Bool

	mu       sync.Mutex
	data     domain.ItemData
	attrs    domain.Attributes
	loading  bool
	contents map[domain.ItemID]*Item
}

func (it *Item) ID() domain.ItemID       { return it.id }
func (it *Item) TypeID() domain.TypeID   { return it.typ.ID }
func (it *Item) Type() domain.Type       { return it.typ }
func (it *Item) Kind() Kind              { return it.kind }
func (it *Item) GroupID() domain.GroupID { return it.typ.GroupID }

func (it *Item) CategoryID() domain.CategoryID { return it.typ.CategoryID }

// Data returns a copy of the persisted scalar fields.
func (it *Item) Data() domain.ItemData {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.data
}

func (it *Item) Name() string              { return it.Data().Name }
func (it *Item) OwnerID() domain.OwnerID   { return it.Data().OwnerID }
func (it *Item) LocationID() domain.ItemID { return it.Data().LocationID }
func (it *Item) Flag() domain.Flag         { return it.Data().Flag }
func (it *Item) Contraband() bool          { return it.Data().Contraband }
func (it *Item) Singleton() bool           { return it.Data().Singleton }
func (it *Item) Quantity() uint32          { return it.Data().Quantity }
func (it *Item) Position() domain.Position { return it.Data().Position }
func (it *Item) CustomInfo() string        { return it.Data().CustomInfo }
func (it *Item) RefCount() int64           { return it.refs.Load() }
func (it *Item) ContentsLoaded() bool      { return it.contentsLoaded.Load() }
func (it *Item) Deleted() bool             { return it.deleted.Load() }
func (it *Item) Destroyed() bool           { return it.destroyed.Load() }
func (it *Item) String() string            { return fmt.Sprintf("%s(%d)", it.kind, it.id) }

// Row returns the flat projection sent to clients.
func (it *Item) Row() domain.Row {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.rowLocked()
}

func (it *Item) rowLocked() domain.Row {
	return domain.Row{
		ItemID:     it.id,
		Name:       it.data.Name,
		TypeID:     it.typ.ID,
		OwnerID:    it.data.OwnerID,
		LocationID: it.data.LocationID,
		Flag:       it.data.Flag,
		Contraband: it.data.Contraband,
		Singleton:  it.data.Singleton,
		Quantity:   it.data.Quantity,
		GroupID:    it.typ.GroupID,
		CategoryID: it.typ.CategoryID,
		CustomInfo: it.data.CustomInfo,
	}
}

// Acquire adds a reference. Acquiring an item nobody references is refused.
func (it *Item) Acquire() error {
	for {
		n := it.refs.Load()
		if n <= 0 {
			return it.factory.violation(it.id, "acquire on an item without references")
		}
		if it.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Release drops a reference. The last release destroys the item, releasing
// the references it holds on its contents.
func (it *Item) Release() error {
	for {
		n := it.refs.Load()
		if n <= 0 {
			return it.factory.violation(it.id, "release on an item without references")
		}
		if it.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				it.destroy()
			}
			return nil
		}
	}
}

func (it *Item) destroy() {
	if !it.destroyed.CompareAndSwap(false, true) {
		return
	}
	it.mu.Lock()
	children := sortedItems(it.contents)
	it.contents = make(map[domain.ItemID]*Item)
	it.mu.Unlock()
	for _, child := range children {
		_ = child.Release()
	}
	it.factory.logger.Debug("item destroyed", "item_id", it.id)
}

// Attribute returns the value of attribute id.
func (it *Item) Attribute(id domain.AttributeID) (float64, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	v, ok := it.attrs[id]
	return v, ok
}

// Attributes returns a copy of the attribute set.
func (it *Item) Attributes() domain.Attributes {
	it.mu.Lock()
	defer it.mu.Unlock()
	out := it.attrs.Clone()
	if out == nil {
		out = domain.Attributes{}
	}
	return out
}

// SetAttribute writes the attribute set through to the store with id set to value.
func (it *Item) SetAttribute(ctx context.Context, id domain.AttributeID, value float64) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.set_attribute")
	defer func() { done(err) }()
	if err := it.checkLive("set_attribute"); err != nil {
		return err
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	if cur, ok := it.attrs[id]; ok && cur == value {
		return nil
	}
	next := it.attrs.Clone()
	if next == nil {
		next = domain.Attributes{}
	}
	next[id] = value
	if err := it.factory.store.SaveAttributes(ctx, it.id, next); err != nil {
		return &domain.StoreError{Op: "set_attribute", ItemID: it.id, Err: err}
	}
	it.attrs = next
	return nil
}

// Save rewrites the item's row, and optionally its attributes, from memory.
// Recursive saves descend into loaded contents.
func (it *Item) Save(ctx context.Context, recursive, attributes bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.save")
	defer func() { done(err) }()
	return it.save(ctx, recursive, attributes)
}

func (it *Item) save(ctx context.Context, recursive, attributes bool) error {
	if err := it.checkLive("save"); err != nil {
		return err
	}
	it.mu.Lock()
	data := it.data
	attrs := it.attrs.Clone()
	it.mu.Unlock()
	if err := it.factory.store.SaveItem(ctx, it.id, data); err != nil {
		return &domain.StoreError{Op: "save", ItemID: it.id, Err: err}
	}
	if attributes && attrs != nil {
		if err := it.factory.store.SaveAttributes(ctx, it.id, attrs); err != nil {
			return &domain.StoreError{Op: "save_attributes", ItemID: it.id, Err: err}
		}
	}
	if !recursive {
		return nil
	}
	for _, child := range it.children() {
		if err := child.save(ctx, true, attributes); err != nil {
			return err
		}
	}
	return nil
}

func (it *Item) checkLive(op string) error {
	if it.deleted.Load() {
		return domain.ValidationError{Op: op, ItemID: it.id, Reason: "item has been deleted"}
	}
	return nil
}

// commitLocked persists next and adopts it once the store has accepted it.
func (it *Item) commitLocked(ctx context.Context, op string, next domain.ItemData) error {
	if err := it.factory.store.SaveItem(ctx, it.id, next); err != nil {
		return &domain.StoreError{Op: op, ItemID: it.id, Err: err}
	}
	it.data = next
	return nil
}

// children returns the loaded contents ordered by id without taking references.
func (it *Item) children() []*Item {
	it.mu.Lock()
	defer it.mu.Unlock()
	return sortedItems(it.contents)
}

func sortedItems(m map[domain.ItemID]*Item) []*Item {
	out := make([]*Item, 0, len(m))
	for _, child := range m {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
