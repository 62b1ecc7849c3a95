// Package item implements the in-memory item graph: a reference-counted cache
// of persistent items that contain one another, are built per taxonomy
// variant, load their contents lazily, and write every mutation through to the
// backing store.
package item

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"itemcore/pkg/domain"
)

// ErrFactoryClosed is returned by lookups after Close.
var ErrFactoryClosed = errors.New("item factory closed")

// Factory is the single authority mapping item ids to live instances.
type Factory struct {
	store    domain.ItemStore
	catalog  domain.TypeCatalog
	sink     domain.NotificationSink
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	strict   bool
	variants variantTable

	mu     sync.Mutex
	items  map[domain.ItemID]*Item
	closed bool
	loads  singleflight.Group
}

// NewFactory constructs a factory over the supplied store and type catalog.
func NewFactory(store domain.ItemStore, catalog domain.TypeCatalog, opts ...Option) *Factory {
	f := &Factory{
		store:    store,
		catalog:  catalog,
		sink:     noopSink{},
		logger:   noopLogger{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		variants: defaultVariants(),
		items:    make(map[domain.ItemID]*Item),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Len reports the number of resident items.
func (f *Factory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// GetType resolves a type id through the catalog.
func (f *Factory) GetType(id domain.TypeID) (domain.Type, error) {
	typ, err := f.catalog.GetType(id)
	if err != nil {
		var nf domain.ErrNotFound
		if errors.As(err, &nf) {
			return domain.Type{}, nf
		}
		return domain.Type{}, fmt.Errorf("get type %d: %w", id, err)
	}
	return typ, nil
}

// GetItem returns a referenced handle to item id, loading it from the store
// when it is not resident. With recurse set, the item's contents and their
// descendants are loaded too. The caller must Release the handle.
func (f *Factory) GetItem(ctx context.Context, id domain.ItemID, recurse bool) (it *Item, err error) {
	ctx, done := f.instrument(ctx, "factory.get_item")
	defer func() { done(err) }()
	return f.getItem(ctx, id, recurse)
}

func (f *Factory) getItem(ctx context.Context, id domain.ItemID, recurse bool) (*Item, error) {
	if id == 0 {
		return nil, domain.ItemNotFound(id)
	}
	it, err := f.acquireResident(id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		key := strconv.FormatUint(uint64(id), 10)
		if _, err, _ := f.loads.Do(key, func() (any, error) {
			return nil, f.load(ctx, id)
		}); err != nil {
			return nil, err
		}
		if it, err = f.acquireResident(id); err != nil {
			return nil, err
		}
		if it == nil {
			// deleted between load and lookup
			return nil, domain.ItemNotFound(id)
		}
	}
	if recurse {
		if err := it.LoadContents(ctx, true); err != nil {
			_ = it.Release()
			return nil, err
		}
	}
	return it, nil
}

// GetIfLoaded returns a referenced handle when item id is resident. It never
// touches the store.
func (f *Factory) GetIfLoaded(id domain.ItemID) (*Item, bool) {
	it, err := f.acquireResident(id)
	if err != nil || it == nil {
		return nil, false
	}
	return it, true
}

// SpawnItem inserts a new row and returns a referenced handle to it.
func (f *Factory) SpawnItem(ctx context.Context, data domain.ItemData) (*Item, error) {
	return f.SpawnItemWithAttributes(ctx, data, nil)
}

// SpawnItemWithAttributes inserts a new row carrying attrs on top of the
// variant's defaults and returns a referenced handle to it.
func (f *Factory) SpawnItemWithAttributes(ctx context.Context, data domain.ItemData, attrs domain.Attributes) (it *Item, err error) {
	ctx, done := f.instrument(ctx, "factory.spawn_item")
	defer func() { done(err) }()

	typ, err := f.GetType(data.TypeID)
	if err != nil {
		return nil, err
	}
	variant := f.variants.resolve(typ)
	if data.Name == "" {
		data.Name = typ.Name
	}
	if variant.RefuseSpawn != "" {
		return nil, domain.ErrCreationRefused{TypeID: typ.ID, Name: data.Name, Reason: variant.RefuseSpawn}
	}
	data = data.Normalize()

	initial := domain.Attributes{}
	if variant.Defaults != nil {
		initial = variant.Defaults()
	}
	for k, v := range attrs {
		initial[k] = v
	}

	id, err := f.store.NewItem(ctx, data)
	if err != nil {
		return nil, &domain.StoreError{Op: "spawn", Err: err}
	}
	if len(initial) > 0 {
		if err := f.store.SaveAttributes(ctx, id, initial); err != nil {
			if derr := f.store.DeleteItem(ctx, id); derr != nil {
				f.logger.Error("spawned row left behind", "item_id", id, "error", derr)
			}
			return nil, &domain.StoreError{Op: "spawn_attributes", ItemID: id, Err: err}
		}
	}
	f.logger.Debug("item spawned", "item_id", id, "type_id", typ.ID, "kind", variant.Kind)

	it, err = f.getItem(ctx, id, false)
	if err != nil {
		return nil, err
	}
	f.attach(data.LocationID, it)
	return it, nil
}

// Close releases the cache's reference on every resident item. Handles held by
// callers stay valid until released.
func (f *Factory) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	resident := sortedItems(f.items)
	f.items = make(map[domain.ItemID]*Item)
	f.mu.Unlock()
	for _, it := range resident {
		_ = it.Release()
	}
	f.logger.Info("item factory closed", "released", len(resident))
}

func (f *Factory) acquireResident(id domain.ItemID) (*Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFactoryClosed
	}
	it, ok := f.items[id]
	if !ok {
		return nil, nil
	}
	if err := it.Acquire(); err != nil {
		return nil, err
	}
	return it, nil
}

// load materializes item id into the cache. Callers collapse concurrent loads
// of one id through f.loads.
func (f *Factory) load(ctx context.Context, id domain.ItemID) error {
	f.mu.Lock()
	_, resident := f.items[id]
	f.mu.Unlock()
	if resident {
		return nil
	}

	data, err := f.store.LoadItem(ctx, id)
	if err != nil {
		var nf domain.ErrNotFound
		if errors.As(err, &nf) {
			return nf
		}
		return &domain.StoreError{Op: "load", ItemID: id, Err: err}
	}
	typ, err := f.GetType(data.TypeID)
	if err != nil {
		return err
	}
	attrs, err := f.store.LoadAttributes(ctx, id)
	if err != nil {
		return &domain.StoreError{Op: "load_attributes", ItemID: id, Err: err}
	}

	variant := f.variants.resolve(typ)
	it := &Item{
		factory:  f,
		id:       id,
		typ:      typ,
		kind:     variant.Kind,
		data:     data.Normalize(),
		attrs:    attrs,
		contents: make(map[domain.ItemID]*Item),
	}
	it.refs.Store(1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFactoryClosed
	}
	if _, dup := f.items[id]; dup {
		f.mu.Unlock()
		return f.violation(id, "second instance loaded for a resident item")
	}
	f.items[id] = it
	f.mu.Unlock()
	f.logger.Debug("item loaded", "item_id", id, "kind", it.kind)
	return nil
}

// evict drops the cache's reference on it if it is still the resident instance.
func (f *Factory) evict(it *Item) {
	f.mu.Lock()
	cur, ok := f.items[it.id]
	if !ok || cur != it {
		f.mu.Unlock()
		return
	}
	delete(f.items, it.id)
	f.mu.Unlock()
	_ = it.Release()
}

// loadedContainer returns a referenced handle to container id when it is
// resident and its contents are loaded.
func (f *Factory) loadedContainer(id domain.ItemID) *Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok || !c.contentsLoaded.Load() {
		return nil
	}
	if err := c.Acquire(); err != nil {
		return nil
	}
	return c
}

// containedBy reports whether id is ancestor or sits transitively inside it.
// Resident items answer from memory; the store covers the rest of the chain.
func (f *Factory) containedBy(ctx context.Context, id, ancestor domain.ItemID) (bool, error) {
	seen := make(map[domain.ItemID]struct{})
	for cur := id; cur != 0; {
		if cur == ancestor {
			return true, nil
		}
		if _, ok := seen[cur]; ok {
			return false, f.violation(cur, "containment chain loops")
		}
		seen[cur] = struct{}{}

		f.mu.Lock()
		c, ok := f.items[cur]
		f.mu.Unlock()
		if ok {
			cur = c.Data().LocationID
			continue
		}
		data, err := f.store.LoadItem(ctx, cur)
		if err != nil {
			var nf domain.ErrNotFound
			if errors.As(err, &nf) {
				return false, nil
			}
			return false, &domain.StoreError{Op: "load", ItemID: cur, Err: err}
		}
		cur = data.LocationID
	}
	return false, nil
}

func (f *Factory) attach(containerID domain.ItemID, child *Item) {
	c := f.loadedContainer(containerID)
	if c == nil {
		return
	}
	defer func() { _ = c.Release() }()
	if err := c.AddContainedItem(child); err != nil {
		f.logger.Warn("container update skipped", "container_id", containerID, "item_id", child.id, "error", err)
	}
}

func (f *Factory) detach(containerID domain.ItemID, child *Item) {
	c := f.loadedContainer(containerID)
	if c == nil {
		return
	}
	defer func() { _ = c.Release() }()
	c.RemoveContainedItem(child)
}

func (f *Factory) notify(ctx context.Context, owner domain.OwnerID, change domain.ChangeRecord) {
	f.sink.Notify(ctx, owner, change)
}

// violation logs and counts a detected invariant violation and returns it as
// an error. Strict factories panic instead.
func (f *Factory) violation(id domain.ItemID, detail string) error {
	err := &domain.InvariantViolation{ItemID: id, Detail: detail}
	f.logger.Error("item invariant violated", "item_id", id, "detail", detail)
	if c, ok := f.metrics.(violationCounter); ok {
		c.ObserveInvariantViolation()
	}
	if f.strict {
		panic(err)
	}
	return err
}

func (f *Factory) instrument(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, op)
	return ctx, func(err error) {
		span.End(err)
		f.metrics.Observe(ctx, op, err == nil, time.Since(start))
	}
}

// Resident lists the ids currently cached, ascending.
func (f *Factory) Resident() []domain.ItemID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]domain.ItemID, 0, len(f.items))
	for id := range f.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
