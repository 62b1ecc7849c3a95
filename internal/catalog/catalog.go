// Package catalog holds the immutable type metadata items are built from.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"itemcore/pkg/domain"
)

var _ domain.TypeCatalog = (*Registry)(nil)

// Registry is an in-memory type catalog. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[domain.TypeID]domain.Type
}

// New builds a registry from types, rejecting zero and duplicate ids.
func New(types ...domain.Type) (*Registry, error) {
	r := &Registry{types: make(map[domain.TypeID]domain.Type, len(types))}
	for _, typ := range types {
		if err := r.Register(typ); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds one type.
func (r *Registry) Register(typ domain.Type) error {
	if typ.ID == 0 {
		return fmt.Errorf("type %q: id is required", typ.Name)
	}
	typ.Name = strings.TrimSpace(typ.Name)
	if typ.Name == "" {
		return fmt.Errorf("type %d: name is required", typ.ID)
	}
	if typ.Volume < 0 || typ.Capacity < 0 || typ.DroneCapacity < 0 {
		return fmt.Errorf("type %d: negative volume or capacity", typ.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[typ.ID]; exists {
		return fmt.Errorf("duplicate type id %d", typ.ID)
	}
	r.types[typ.ID] = typ
	return nil
}

// GetType returns the type or ErrNotFound.
func (r *Registry) GetType(id domain.TypeID) (domain.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	typ, ok := r.types[id]
	if !ok {
		return domain.Type{}, domain.TypeNotFound(id)
	}
	return typ, nil
}

// Len reports the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Types lists every registered type ordered by id.
func (r *Registry) Types() []domain.Type {
	r.mu.RLock()
	out := make([]domain.Type, 0, len(r.types))
	for _, typ := range r.types {
		out = append(out, typ)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Parse decodes a YAML list of types.
func Parse(in io.Reader) (*Registry, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var types []domain.Type
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&types); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(types...)
}

// Load reads the YAML catalog at path.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = f.Close() }()
	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}
