package domain

import "context"

// ItemStore is the durable backend for item rows, attributes, and containment
// listings. Every call is synchronous; a failed call leaves the backend
// unchanged.
type ItemStore interface {
	// NewItem inserts a row and returns its freshly assigned id.
	NewItem(ctx context.Context, data ItemData) (ItemID, error)
	// LoadItem returns the row for id or ErrNotFound.
	LoadItem(ctx context.Context, id ItemID) (ItemData, error)
	// SaveItem overwrites the scalar fields of an existing row.
	SaveItem(ctx context.Context, id ItemID, data ItemData) error
	// DeleteItem removes the row. Deleting a missing row is not an error.
	DeleteItem(ctx context.Context, id ItemID) error
	// GetItemContents lists the ids of rows located in id, ascending.
	GetItemContents(ctx context.Context, id ItemID) ([]ItemID, error)

	LoadAttributes(ctx context.Context, id ItemID) (Attributes, error)
	SaveAttributes(ctx context.Context, id ItemID, attrs Attributes) error
	DeleteAttributes(ctx context.Context, id ItemID) error

	Close() error
}

// TypeCatalog resolves type ids to immutable metadata.
type TypeCatalog interface {
	// GetType returns the type or ErrNotFound{Entity: EntityItemType}.
	GetType(id TypeID) (Type, error)
}

// NotificationSink delivers change records to an owner's live session.
// Delivery is fire-and-forget; owners without a session are skipped silently.
type NotificationSink interface {
	Notify(ctx context.Context, owner OwnerID, change ChangeRecord)
}
