package item

import (
	"context"
	"errors"

	"itemcore/pkg/domain"
)

// Split takes qty units off the stack into a new item of the same type, owner,
// and flag and returns a referenced handle to it. When notifying, the new
// stack is spawned at LocationTemp and then moved next to the source so
// clients see it arrive.
func (it *Item) Split(ctx context.Context, qty uint32, notify bool) (res *Item, err error) {
	ctx, done := it.factory.instrument(ctx, "item.split")
	defer func() { done(err) }()

	if qty == 0 {
		return nil, domain.ValidationError{Op: "split", ItemID: it.id, Reason: "split quantity must be positive"}
	}
	if err := it.AlterQuantity(ctx, -int64(qty), notify); err != nil {
		return nil, err
	}

	src := it.Data()
	spawn := domain.NewStackData(src.TypeID, src.OwnerID, src.LocationID, src.Flag, qty)
	if notify {
		spawn.LocationID = domain.LocationTemp
	}
	res, err = it.factory.SpawnItem(ctx, spawn)
	if err != nil {
		it.restoreQuantity(ctx, "split", int64(qty), notify)
		return nil, err
	}
	if notify {
		if err := res.Move(ctx, src.LocationID, src.Flag, true); err != nil {
			if derr := res.discard(ctx); derr != nil {
				it.factory.logger.Error("split stack left at temp location", "item_id", res.id, "error", derr)
			}
			it.restoreQuantity(ctx, "split", int64(qty), notify)
			return nil, err
		}
	}
	return res, nil
}

// restoreQuantity reverts a quantity change made by a multi-item operation
// that failed part way.
func (it *Item) restoreQuantity(ctx context.Context, op string, delta int64, notify bool) {
	if err := it.AlterQuantity(ctx, delta, notify); err != nil {
		it.factory.logger.Error(op+" rollback failed", "item_id", it.id, "delta", delta, "error", err)
	}
}

// Merge moves qty units of other into this stack; zero merges all of it.
// Both items must share type, location, and flag. A fully merged other is
// deleted. The caller's reference to other is consumed unless Merge returns a
// ValidationError.
func (it *Item) Merge(ctx context.Context, other *Item, qty uint32, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.merge")
	defer func() { done(err) }()

	if other == nil {
		return domain.ValidationError{Op: "merge", ItemID: it.id, Reason: "nothing to merge"}
	}
	if other == it {
		return domain.ValidationError{Op: "merge", ItemID: it.id, Reason: "cannot merge an item into itself"}
	}
	if err := other.checkLive("merge"); err != nil {
		return err
	}
	dst, src := it.Data(), other.Data()
	switch {
	case it.typ.ID != other.typ.ID:
		return domain.ValidationError{Op: "merge", ItemID: it.id, Reason: "type mismatch"}
	case dst.LocationID != src.LocationID || dst.Flag != src.Flag:
		return domain.ValidationError{Op: "merge", ItemID: it.id, Reason: "items are not in the same location and flag"}
	case src.Singleton:
		return domain.ValidationError{Op: "merge", ItemID: other.id, Reason: "singleton items cannot be merged"}
	}
	if qty == 0 {
		qty = src.Quantity
	}
	if qty == 0 || qty > src.Quantity {
		return domain.ValidationError{Op: "merge", ItemID: other.id, Reason: "merge quantity out of range"}
	}

	if err := it.AlterQuantity(ctx, int64(qty), notify); err != nil {
		var verr domain.ValidationError
		if !errors.As(err, &verr) {
			_ = other.Release()
		}
		return err
	}
	if qty == src.Quantity {
		if err := other.Delete(ctx); err != nil {
			if !other.Deleted() {
				// the row survived, so its units are still counted there
				it.restoreQuantity(ctx, "merge", -int64(qty), notify)
				it.factory.restorePlacement(ctx, other.id, src, notify)
			}
			return err
		}
		return nil
	}
	if err := other.AlterQuantity(ctx, -int64(qty), notify); err != nil {
		it.restoreQuantity(ctx, "merge", -int64(qty), notify)
		_ = other.Release()
		return &domain.StoreError{Op: "merge", ItemID: other.id, Err: err}
	}
	return other.Release()
}

// restorePlacement puts a still-resident item back at the location, flag and
// owner recorded in prev after a delete that failed part way.
func (f *Factory) restorePlacement(ctx context.Context, id domain.ItemID, prev domain.ItemData, notify bool) {
	it, ok := f.GetIfLoaded(id)
	if !ok {
		return
	}
	defer func() { _ = it.Release() }()
	if err := it.Move(ctx, prev.LocationID, prev.Flag, notify); err != nil {
		f.logger.Error("restore placement failed", "item_id", id, "error", err)
		return
	}
	if err := it.ChangeOwner(ctx, prev.OwnerID, notify); err != nil {
		f.logger.Error("restore owner failed", "item_id", id, "error", err)
	}
}

type stackKey struct {
	typeID domain.TypeID
	flag   domain.Flag
}

// StackContainedItems merges the non-singleton children under flag owned by
// forOwner into one stack per type, keeping the lowest id. FlagAnywhere and
// OwnerNone match everything; stacks in different flags are never merged.
func (it *Item) StackContainedItems(ctx context.Context, flag domain.Flag, forOwner domain.OwnerID) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.stack_contents")
	defer func() { done(err) }()

	if err := it.checkLive("stack_contents"); err != nil {
		return err
	}
	if err := it.LoadContents(ctx, false); err != nil {
		return err
	}

	heads := make(map[stackKey]*Item)
	defer func() {
		for _, head := range heads {
			_ = head.Release()
		}
	}()

	var errs []error
	for _, child := range it.children() {
		d := child.Data()
		if d.Singleton ||
			(flag != domain.FlagAnywhere && d.Flag != flag) ||
			(forOwner != domain.OwnerNone && d.OwnerID != forOwner) {
			continue
		}
		if err := child.Acquire(); err != nil {
			continue
		}
		key := stackKey{typeID: child.typ.ID, flag: d.Flag}
		head, ok := heads[key]
		if !ok {
			heads[key] = child
			continue
		}
		if err := head.Merge(ctx, child, 0, true); err != nil {
			it.factory.logger.Warn("stack merge failed", "container_id", it.id, "into", head.id, "from", child.id, "error", err)
			errs = append(errs, err)
			var dv domain.ValidationError
			if errors.As(err, &dv) {
				_ = child.Release()
			}
		}
	}
	return errors.Join(errs...)
}
