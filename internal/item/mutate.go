package item

import (
	"context"
	"fmt"
	"math"
	"strings"

	"itemcore/pkg/domain"
)

// mutate applies change to a copy of the item's data under the item lock,
// writes it through, and adopts it. change returns false when nothing changes.
func (it *Item) mutate(ctx context.Context, op string, change func(next *domain.ItemData) (bool, error)) (prev domain.ItemData, row domain.Row, changed bool, err error) {
	if err := it.checkLive(op); err != nil {
		return prev, row, false, err
	}
	it.mu.Lock()
	defer it.mu.Unlock()
	prev = it.data
	next := it.data
	changed, err = change(&next)
	if err != nil || !changed {
		return prev, row, false, err
	}
	if err := it.commitLocked(ctx, op, next); err != nil {
		return prev, row, false, err
	}
	return prev, it.rowLocked(), true, nil
}

// Move relocates the item to location with flag. Loaded resident containers
// are updated; the store remains authoritative for everything else.
func (it *Item) Move(ctx context.Context, location domain.ItemID, flag domain.Flag, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.move")
	defer func() { done(err) }()

	if location == it.id {
		return domain.ValidationError{Op: "move", ItemID: it.id, Reason: "item cannot be moved into itself"}
	}
	inside, err := it.factory.containedBy(ctx, location, it.id)
	if err != nil {
		return err
	}
	if inside {
		return domain.ValidationError{Op: "move", ItemID: it.id, Reason: fmt.Sprintf("location %d is inside the item", location)}
	}
	prev, row, changed, err := it.mutate(ctx, "move", func(next *domain.ItemData) (bool, error) {
		if next.LocationID == location && next.Flag == flag {
			return false, nil
		}
		next.LocationID = location
		next.Flag = flag
		return true, nil
	})
	if err != nil || !changed {
		return err
	}
	if prev.LocationID != location {
		it.factory.detach(prev.LocationID, it)
		it.factory.attach(location, it)
	}
	if notify {
		change := domain.NewChangeRecord(row)
		if prev.LocationID != location {
			change = change.With(domain.FieldLocationID, prev.LocationID)
		}
		if prev.Flag != flag {
			change = change.With(domain.FieldFlag, prev.Flag)
		}
		it.factory.notify(ctx, row.OwnerID, change)
	}
	return nil
}

// MoveInto moves the item into container under flag.
func (it *Item) MoveInto(ctx context.Context, container *Item, flag domain.Flag, notify bool) error {
	if container == nil {
		return domain.ValidationError{Op: "move", ItemID: it.id, Reason: "nil container"}
	}
	return it.Move(ctx, container.id, flag, notify)
}

// ChangeFlag changes the item's slot within its current location.
func (it *Item) ChangeFlag(ctx context.Context, flag domain.Flag, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.change_flag")
	defer func() { done(err) }()

	prev, row, changed, err := it.mutate(ctx, "change_flag", func(next *domain.ItemData) (bool, error) {
		if next.Flag == flag {
			return false, nil
		}
		next.Flag = flag
		return true, nil
	})
	if err != nil || !changed {
		return err
	}
	if notify {
		it.factory.notify(ctx, row.OwnerID, domain.NewChangeRecord(row).With(domain.FieldFlag, prev.Flag))
	}
	return nil
}

// ChangeOwner reassigns the item. Both the new and the previous owner are
// notified.
func (it *Item) ChangeOwner(ctx context.Context, owner domain.OwnerID, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.change_owner")
	defer func() { done(err) }()

	prev, row, changed, err := it.mutate(ctx, "change_owner", func(next *domain.ItemData) (bool, error) {
		if next.OwnerID == owner {
			return false, nil
		}
		next.OwnerID = owner
		return true, nil
	})
	if err != nil || !changed {
		return err
	}
	if notify {
		change := domain.NewChangeRecord(row).With(domain.FieldOwnerID, prev.OwnerID)
		it.factory.notify(ctx, owner, change)
		it.factory.notify(ctx, prev.OwnerID, change.Clone())
	}
	return nil
}

// ChangeSingleton toggles the singleton bit. Only a stack of one may become a
// singleton.
func (it *Item) ChangeSingleton(ctx context.Context, singleton bool, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.change_singleton")
	defer func() { done(err) }()

	prev, row, changed, err := it.mutate(ctx, "change_singleton", func(next *domain.ItemData) (bool, error) {
		if next.Singleton == singleton {
			return false, nil
		}
		if singleton && next.Quantity > 1 {
			return false, domain.ValidationError{Op: "change_singleton", ItemID: it.id, Reason: "stack must be split down to one unit first"}
		}
		next.Singleton = singleton
		next.Quantity = 1
		return true, nil
	})
	if err != nil || !changed {
		return err
	}
	if notify {
		it.factory.notify(ctx, row.OwnerID, domain.NewChangeRecord(row).With(domain.FieldSingleton, prev.Singleton))
	}
	return nil
}

// Rename sets the item's display name.
func (it *Item) Rename(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	_, _, _, err := it.mutate(ctx, "rename", func(next *domain.ItemData) (bool, error) {
		if next.Name == name {
			return false, nil
		}
		next.Name = name
		return true, nil
	})
	return err
}

func (it *Item) SetCustomInfo(ctx context.Context, info string) error {
	_, _, _, err := it.mutate(ctx, "set_custom_info", func(next *domain.ItemData) (bool, error) {
		if next.CustomInfo == info {
			return false, nil
		}
		next.CustomInfo = info
		return true, nil
	})
	return err
}

// Relocate sets the item's position in space.
func (it *Item) Relocate(ctx context.Context, pos domain.Position) error {
	_, _, _, err := it.mutate(ctx, "relocate", func(next *domain.ItemData) (bool, error) {
		if next.Position == pos {
			return false, nil
		}
		next.Position = pos
		return true, nil
	})
	return err
}

// SetQuantity sets the stack size. Singletons refuse quantity changes.
func (it *Item) SetQuantity(ctx context.Context, qty uint32, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.set_quantity")
	defer func() { done(err) }()
	return it.changeQuantity(ctx, "set_quantity", notify, func(uint32) (uint32, error) { return qty, nil })
}

// AlterQuantity adds delta to the stack size. Results below zero are refused.
func (it *Item) AlterQuantity(ctx context.Context, delta int64, notify bool) (err error) {
	ctx, done := it.factory.instrument(ctx, "item.alter_quantity")
	defer func() { done(err) }()
	if delta == 0 {
		return it.checkLive("alter_quantity")
	}
	return it.changeQuantity(ctx, "alter_quantity", notify, func(cur uint32) (uint32, error) {
		next := int64(cur) + delta
		switch {
		case next < 0:
			return 0, domain.ValidationError{Op: "alter_quantity", ItemID: it.id, Reason: "quantity would drop below zero"}
		case next > math.MaxUint32:
			return 0, domain.ValidationError{Op: "alter_quantity", ItemID: it.id, Reason: "quantity overflow"}
		}
		return uint32(next), nil
	})
}

func (it *Item) changeQuantity(ctx context.Context, op string, notify bool, compute func(cur uint32) (uint32, error)) error {
	prev, row, changed, err := it.mutate(ctx, op, func(next *domain.ItemData) (bool, error) {
		if next.Singleton {
			return false, domain.ValidationError{Op: op, ItemID: it.id, Reason: "singleton items have no quantity"}
		}
		qty, err := compute(next.Quantity)
		if err != nil {
			return false, err
		}
		if qty == next.Quantity {
			return false, nil
		}
		next.Quantity = qty
		return true, nil
	})
	if err != nil || !changed {
		return err
	}
	if notify {
		it.factory.notify(ctx, row.OwnerID, domain.NewChangeRecord(row).With(domain.FieldQuantity, prev.Quantity))
	}
	return nil
}
