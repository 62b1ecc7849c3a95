package item

import (
	"context"
	"errors"
	"fmt"

	"itemcore/pkg/domain"
)

// ZombieName replaces the name of an item deleted while other handles were
// still outstanding.
const ZombieName = "BAD DELETED ITEM"

// Delete removes the item and everything it transitively contains from the
// store and the cache. It consumes the caller's handle whatever the outcome.
// If other handles remain, the instance is left behind as an inert zombie and
// an InvariantViolation is returned.
func (it *Item) Delete(ctx context.Context) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.delete")
	defer func() { done(err) }()
	defer func() { _ = it.Release() }()

	if err := it.checkLive("delete"); err != nil {
		return err
	}
	if err := it.Move(ctx, domain.LocationJunk, it.Flag(), true); err != nil {
		return err
	}
	if err := it.ChangeOwner(ctx, domain.OwnerSystem, true); err != nil {
		return err
	}
	if err := it.LoadContents(ctx, true); err != nil {
		return err
	}

	var errs []error
	for _, child := range it.children() {
		if err := child.Acquire(); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := child.Delete(ctx); err != nil {
			it.factory.logger.Warn("contained item delete failed", "item_id", it.id, "child_id", child.id, "error", err)
			errs = append(errs, err)
		}
	}
	it.mu.Lock()
	leftover := sortedItems(it.contents)
	it.contents = make(map[domain.ItemID]*Item)
	it.mu.Unlock()
	for _, child := range leftover {
		_ = child.Release()
	}

	if err := it.factory.store.DeleteAttributes(ctx, it.id); err != nil {
		return errors.Join(append(errs, &domain.StoreError{Op: "delete_attributes", ItemID: it.id, Err: err})...)
	}
	if err := it.factory.store.DeleteItem(ctx, it.id); err != nil {
		return errors.Join(append(errs, &domain.StoreError{Op: "delete", ItemID: it.id, Err: err})...)
	}
	it.deleted.Store(true)
	it.factory.evict(it)
	it.factory.logger.Debug("item deleted", "item_id", it.id)

	if n := it.refs.Load(); n != 1 {
		it.mu.Lock()
		it.data.Name = ZombieName
		it.data.Quantity = 0
		it.mu.Unlock()
		it.contentsLoaded.Store(true)
		errs = append(errs, it.factory.violation(it.id, fmt.Sprintf("deleted with %d outstanding references", n-1)))
	}
	return errors.Join(errs...)
}

// discard removes an item that was spawned as part of an operation that then
// failed. It has no contents and was never announced, so it skips the junk
// move. It consumes the caller's handle.
func (it *Item) discard(ctx context.Context) error {
	defer func() { _ = it.Release() }()
	if err := it.factory.store.DeleteAttributes(ctx, it.id); err != nil {
		return &domain.StoreError{Op: "delete_attributes", ItemID: it.id, Err: err}
	}
	if err := it.factory.store.DeleteItem(ctx, it.id); err != nil {
		return &domain.StoreError{Op: "delete", ItemID: it.id, Err: err}
	}
	it.deleted.Store(true)
	it.factory.detach(it.LocationID(), it)
	it.factory.evict(it)
	return nil
}
