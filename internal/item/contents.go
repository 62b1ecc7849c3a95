package item

import (
	"context"
	"errors"
	"fmt"

	"itemcore/pkg/domain"
)

// AddContainedItem records child in the loaded contents, taking a reference
// on it. A second instance for an already contained id is refused.
func (it *Item) AddContainedItem(child *Item) error {
	if child == nil {
		return domain.ValidationError{Op: "add_contained", ItemID: it.id, Reason: "nil item"}
	}
	if child == it {
		return it.factory.violation(it.id, "item cannot contain itself")
	}
	if child.Deleted() {
		return domain.ValidationError{Op: "add_contained", ItemID: child.id, Reason: "item has been deleted"}
	}
	if err := it.checkLive("add_contained"); err != nil {
		return err
	}
	it.mu.Lock()
	cur, ok := it.contents[child.id]
	if ok {
		it.mu.Unlock()
		if cur != child {
			return it.factory.violation(child.id, fmt.Sprintf("two instances of item %d contained in %d", child.id, it.id))
		}
		return nil
	}
	if err := child.Acquire(); err != nil {
		it.mu.Unlock()
		return err
	}
	it.contents[child.id] = child
	it.mu.Unlock()
	it.factory.logger.Debug("container updated", "container_id", it.id, "added", child.id)
	return nil
}

// RemoveContainedItem drops child from the loaded contents and releases the
// reference held on it.
func (it *Item) RemoveContainedItem(child *Item) {
	if child == nil {
		return
	}
	it.mu.Lock()
	cur, ok := it.contents[child.id]
	if !ok || cur != child {
		it.mu.Unlock()
		return
	}
	delete(it.contents, child.id)
	it.mu.Unlock()
	_ = child.Release()
	it.factory.logger.Debug("container updated", "container_id", it.id, "removed", child.id)
}

// LoadContents resolves the item's children through the factory on first
// call. Later calls only descend into the children when recursive, so a
// container loaded shallowly still gets its whole subtree. Children that fail
// to load are skipped. Listing failures leave the contents unloaded.
func (it *Item) LoadContents(ctx context.Context, recursive bool) (err error) {
	it.mu.Lock()
	if it.loading {
		it.mu.Unlock()
		return nil
	}
	if it.contentsLoaded.Load() {
		it.mu.Unlock()
		if recursive {
			return it.loadDescendants(ctx)
		}
		return nil
	}
	it.loading = true
	it.mu.Unlock()

	ctx, done := it.factory.instrument(ctx, "item.load_contents")
	defer func() { done(err) }()

	ids, err := it.factory.store.GetItemContents(ctx, it.id)
	if err != nil {
		it.mu.Lock()
		it.loading = false
		it.mu.Unlock()
		return &domain.StoreError{Op: "load_contents", ItemID: it.id, Err: err}
	}

	loaded := make([]*Item, 0, len(ids))
	for _, id := range ids {
		if id == it.id {
			continue
		}
		child, err := it.factory.getItem(ctx, id, recursive)
		if err != nil {
			it.factory.logger.Warn("skipping contained item", "container_id", it.id, "item_id", id, "error", err)
			continue
		}
		loaded = append(loaded, child)
	}

	var dupes []*Item
	it.mu.Lock()
	for _, child := range loaded {
		if cur, ok := it.contents[child.id]; ok {
			if cur != child {
				dupes = append(dupes, child)
			} else {
				// attached by a concurrent move or spawn
				_ = child.Release()
			}
			continue
		}
		it.contents[child.id] = child
	}
	it.loading = false
	it.contentsLoaded.Store(true)
	it.mu.Unlock()

	for _, child := range dupes {
		_ = it.factory.violation(child.id, fmt.Sprintf("two instances of item %d contained in %d", child.id, it.id))
		_ = child.Release()
	}
	it.factory.logger.Debug("contents loaded", "item_id", it.id, "count", len(loaded))
	return nil
}

// loadDescendants recursively loads the contents of every loaded child.
func (it *Item) loadDescendants(ctx context.Context) error {
	var errs []error
	for _, child := range it.children() {
		if err := child.Acquire(); err != nil {
			continue
		}
		if err := child.LoadContents(ctx, true); err != nil {
			errs = append(errs, err)
		}
		_ = child.Release()
	}
	return errors.Join(errs...)
}

func (it *Item) collect(match func(domain.ItemData) bool, acquire bool, limit int) []*Item {
	var out []*Item
	for _, child := range it.children() {
		if !match(child.Data()) {
			continue
		}
		if acquire && child.Acquire() != nil {
			continue
		}
		out = append(out, child)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Contents returns the loaded children ordered by id.
func (it *Item) Contents(acquire bool) []*Item {
	return it.collect(func(domain.ItemData) bool { return true }, acquire, 0)
}

// FindFirstByFlag returns the lowest-id loaded child carrying flag.
func (it *Item) FindFirstByFlag(flag domain.Flag, acquire bool) (*Item, bool) {
	found := it.collect(func(d domain.ItemData) bool { return d.Flag == flag }, acquire, 1)
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}

// FindByFlag returns the loaded children carrying flag, ordered by id.
func (it *Item) FindByFlag(flag domain.Flag, acquire bool) []*Item {
	return it.collect(func(d domain.ItemData) bool { return d.Flag == flag }, acquire, 0)
}

// FindByFlagRange returns the loaded children whose flag lies in [low, high].
func (it *Item) FindByFlagRange(low, high domain.Flag, acquire bool) []*Item {
	return it.collect(func(d domain.ItemData) bool { return d.Flag >= low && d.Flag <= high }, acquire, 0)
}

// FindByFlagSet returns the loaded children whose flag is one of flags.
func (it *Item) FindByFlagSet(flags []domain.Flag, acquire bool) []*Item {
	set := make(map[domain.Flag]struct{}, len(flags))
	for _, f := range flags {
		set[f] = struct{}{}
	}
	return it.collect(func(d domain.ItemData) bool {
		_, ok := set[d.Flag]
		return ok
	}, acquire, 0)
}

// GetByID returns the loaded child with the given id.
func (it *Item) GetByID(id domain.ItemID, acquire bool) (*Item, bool) {
	it.mu.Lock()
	child, ok := it.contents[id]
	it.mu.Unlock()
	if !ok {
		return nil, false
	}
	if acquire && child.Acquire() != nil {
		return nil, false
	}
	return child, true
}

// Contains reports whether other is among the loaded contents, or with
// recursive set, anywhere below them.
func (it *Item) Contains(other *Item, recursive bool) bool {
	if other == nil {
		return false
	}
	seen := map[domain.ItemID]struct{}{it.id: {}}
	queue := []*Item{it}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range cur.children() {
			if child == other {
				return true
			}
			if _, ok := seen[child.id]; ok || !recursive {
				continue
			}
			seen[child.id] = struct{}{}
			queue = append(queue, child)
		}
	}
	return false
}

// InventoryRowset returns rows of the loaded children matching flag and owner,
// ordered by id. FlagAnywhere and OwnerNone match everything.
func (it *Item) InventoryRowset(flag domain.Flag, forOwner domain.OwnerID) []domain.Row {
	var rows []domain.Row
	for _, child := range it.children() {
		row := child.Row()
		if flag != domain.FlagAnywhere && row.Flag != flag {
			continue
		}
		if forOwner != domain.OwnerNone && row.OwnerID != forOwner {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// RemainingCapacity returns the free volume of the cargo hold or drone bay
// after subtracting the loaded children stored there. Other flags have no
// capacity.
func (it *Item) RemainingCapacity(flag domain.Flag) float64 {
	var remaining float64
	switch flag {
	case domain.FlagCargoHold:
		remaining = it.typ.Capacity
	case domain.FlagDroneBay:
		remaining = it.typ.DroneCapacity
	}
	for _, child := range it.children() {
		d := child.Data()
		if d.Flag == flag {
			remaining -= float64(d.Quantity) * child.typ.Volume
		}
	}
	return remaining
}
