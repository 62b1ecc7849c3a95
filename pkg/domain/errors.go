package domain

import "fmt"

// ErrNotFound is returned when an item or type id is unknown.
type ErrNotFound struct {
	Entity EntityType
	ID     uint32
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ItemNotFound builds an ErrNotFound for an item id.
func ItemNotFound(id ItemID) ErrNotFound {
	return ErrNotFound{Entity: EntityItem, ID: uint32(id)}
}

// TypeNotFound builds an ErrNotFound for a type id.
func TypeNotFound(id TypeID) ErrNotFound {
	return ErrNotFound{Entity: EntityItemType, ID: uint32(id)}
}

// ValidationError rejects a mutation whose arguments or item state make it
// meaningless (quantity on a singleton, bad split amount, merge mismatch).
type ValidationError struct {
	Op     string
	ItemID ItemID
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s item %d: %s", e.Op, e.ItemID, e.Reason)
}

// ErrCreationRefused is returned when a type may only be loaded, never spawned.
type ErrCreationRefused struct {
	TypeID TypeID
	Name   string
	Reason string
}

func (e ErrCreationRefused) Error() string {
	return fmt.Sprintf("refusing to create %q (type %d): %s", e.Name, e.TypeID, e.Reason)
}

// StoreError wraps a persistent store failure.
type StoreError struct {
	Op     string
	ItemID ItemID
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s item %d: %v", e.Op, e.ItemID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// InvariantViolation reports graph corruption that was detected and refused:
// two instances for one id, refcount misuse, or delete with stray references.
type InvariantViolation struct {
	ItemID ItemID
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on item %d: %s", e.ItemID, e.Detail)
}
