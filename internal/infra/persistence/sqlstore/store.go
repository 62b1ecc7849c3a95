// Package sqlstore implements domain.ItemStore over database/sql. The sqlite
// and postgres adapters share it and differ only in driver, schema setup and
// placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"itemcore/pkg/domain"
)

var _ domain.ItemStore = (*Store)(nil)

// Rebinder rewrites a query written with ? placeholders for a driver.
type Rebinder func(query string) string

// Question leaves ? placeholders untouched (sqlite).
func Question(query string) string { return query }

// Dollar rewrites ? placeholders to $1, $2, ... (postgres).
func Dollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const itemColumns = "name, type_id, owner_id, location_id, flag, contraband, singleton, quantity, x, y, z, custom_info"

type queries struct {
	insert      string
	load        string
	update      string
	deleteItem  string
	contents    string
	exists      string
	loadAttrs   string
	insertAttr  string
	deleteAttrs string
}

func buildQueries(rebind Rebinder) queries {
	return queries{
		insert:      rebind("INSERT INTO items (" + itemColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING item_id"),
		load:        rebind("SELECT " + itemColumns + " FROM items WHERE item_id = ?"),
		update:      rebind("UPDATE items SET name = ?, type_id = ?, owner_id = ?, location_id = ?, flag = ?, contraband = ?, singleton = ?, quantity = ?, x = ?, y = ?, z = ?, custom_info = ? WHERE item_id = ?"),
		deleteItem:  rebind("DELETE FROM items WHERE item_id = ?"),
		contents:    rebind("SELECT item_id FROM items WHERE location_id = ? ORDER BY item_id"),
		exists:      rebind("SELECT item_id FROM items WHERE item_id = ?"),
		loadAttrs:   rebind("SELECT attribute_id, value FROM item_attributes WHERE item_id = ?"),
		insertAttr:  rebind("INSERT INTO item_attributes (item_id, attribute_id, value) VALUES (?, ?, ?)"),
		deleteAttrs: rebind("DELETE FROM item_attributes WHERE item_id = ?"),
	}
}

// Store persists item rows and attributes in the items and item_attributes
// tables. The schema must already exist.
type Store struct {
	db *sql.DB
	q  queries
}

// New wraps an open database whose schema is in place.
func New(db *sql.DB, rebind Rebinder) *Store {
	if rebind == nil {
		rebind = Question
	}
	return &Store{db: db, q: buildQueries(rebind)}
}

// DB exposes the underlying handle for adapter tests.
func (s *Store) DB() *sql.DB { return s.db }

func itemArgs(data domain.ItemData) []any {
	return []any{
		data.Name,
		uint32(data.TypeID),
		uint32(data.OwnerID),
		uint32(data.LocationID),
		uint16(data.Flag),
		data.Contraband,
		data.Singleton,
		data.Quantity,
		data.Position.X,
		data.Position.Y,
		data.Position.Z,
		data.CustomInfo,
	}
}

// NewItem inserts a row and returns the id the database assigned.
func (s *Store) NewItem(ctx context.Context, data domain.ItemData) (domain.ItemID, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.q.insert, itemArgs(data)...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("insert item: invalid id %d", id)
	}
	return domain.ItemID(id), nil
}

// LoadItem returns the row for id.
func (s *Store) LoadItem(ctx context.Context, id domain.ItemID) (domain.ItemData, error) {
	var (
		data                              domain.ItemData
		typeID, owner, location, quantity int64
		flag                              int64
		customInfo                        sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.q.load, uint32(id)).Scan(
		&data.Name, &typeID, &owner, &location, &flag,
		&data.Contraband, &data.Singleton, &quantity,
		&data.Position.X, &data.Position.Y, &data.Position.Z,
		&customInfo,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ItemData{}, domain.ItemNotFound(id)
	}
	if err != nil {
		return domain.ItemData{}, fmt.Errorf("select item %d: %w", id, err)
	}
	data.TypeID = domain.TypeID(typeID)
	data.OwnerID = domain.OwnerID(owner)
	data.LocationID = domain.ItemID(location)
	data.Flag = domain.Flag(flag)
	data.Quantity = uint32(quantity)
	data.CustomInfo = customInfo.String
	return data, nil
}

// SaveItem overwrites an existing row.
func (s *Store) SaveItem(ctx context.Context, id domain.ItemID, data domain.ItemData) error {
	args := append(itemArgs(data), uint32(id))
	res, err := s.db.ExecContext(ctx, s.q.update, args...)
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	if n == 0 {
		return domain.ItemNotFound(id)
	}
	return nil
}

// DeleteItem removes the row. Missing rows are ignored.
func (s *Store) DeleteItem(ctx context.Context, id domain.ItemID) error {
	if _, err := s.db.ExecContext(ctx, s.q.deleteItem, uint32(id)); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// GetItemContents lists the ids located in id, ascending.
func (s *Store) GetItemContents(ctx context.Context, id domain.ItemID) ([]domain.ItemID, error) {
	rows, err := s.db.QueryContext(ctx, s.q.contents, uint32(id))
	if err != nil {
		return nil, fmt.Errorf("select contents of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.ItemID
	for rows.Next() {
		var child int64
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan contents of %d: %w", id, err)
		}
		out = append(out, domain.ItemID(child))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents of %d: %w", id, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LoadAttributes returns the stored attributes; items without any yield an
// empty set.
func (s *Store) LoadAttributes(ctx context.Context, id domain.ItemID) (domain.Attributes, error) {
	rows, err := s.db.QueryContext(ctx, s.q.loadAttrs, uint32(id))
	if err != nil {
		return nil, fmt.Errorf("select attributes of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	attrs := domain.Attributes{}
	for rows.Next() {
		var (
			attr  int64
			value float64
		)
		if err := rows.Scan(&attr, &value); err != nil {
			return nil, fmt.Errorf("scan attributes of %d: %w", id, err)
		}
		attrs[domain.AttributeID(attr)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes of %d: %w", id, err)
	}
	return attrs, nil
}

// SaveAttributes replaces the attribute set of an existing row in one
// transaction.
func (s *Store) SaveAttributes(ctx context.Context, id domain.ItemID, attrs domain.Attributes) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	var found int64
	err = tx.QueryRowContext(ctx, s.q.exists, uint32(id)).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ItemNotFound(id)
	}
	if err != nil {
		return fmt.Errorf("check item %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, s.q.deleteAttrs, uint32(id)); err != nil {
		return fmt.Errorf("clear attributes of %d: %w", id, err)
	}
	keys := make([]domain.AttributeID, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, s.q.insertAttr, uint32(id), uint32(k), attrs[k]); err != nil {
			return fmt.Errorf("insert attribute %d of %d: %w", k, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteAttributes drops every attribute of the item.
func (s *Store) DeleteAttributes(ctx context.Context, id domain.ItemID) error {
	if _, err := s.db.ExecContext(ctx, s.q.deleteAttrs, uint32(id)); err != nil {
		return fmt.Errorf("delete attributes of %d: %w", id, err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
