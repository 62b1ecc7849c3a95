package item

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"itemcore/internal/infra/persistence/memory"
	"itemcore/pkg/domain"
)

const (
	typeTritanium domain.TypeID = 34
	typePyerite   domain.TypeID = 35
	typeRifter    domain.TypeID = 587
	typeContainer domain.TypeID = 3467
	typeModule    domain.TypeID = 2046
	typeDrone     domain.TypeID = 2488
	typeBlueprint domain.TypeID = 681
	typeCharacter domain.TypeID = 1373
	typeStation   domain.TypeID = 1529
	typeSun       domain.TypeID = 6
	typeSkill     domain.TypeID = 3300

	ownerAlice domain.OwnerID = 90000001
	ownerBob   domain.OwnerID = 90000002

	solarSystem domain.ItemID = 30000142
)

type typeCatalog map[domain.TypeID]domain.Type

func (c typeCatalog) GetType(id domain.TypeID) (domain.Type, error) {
	typ, ok := c[id]
	if !ok {
		return domain.Type{}, domain.TypeNotFound(id)
	}
	return typ, nil
}

func testCatalog() typeCatalog {
	return typeCatalog{
		typeTritanium: {ID: typeTritanium, Name: "Tritanium", GroupID: 18, CategoryID: 4, Volume: 0.01},
		typePyerite:   {ID: typePyerite, Name: "Pyerite", GroupID: 18, CategoryID: 4, Volume: 0.01},
		typeRifter:    {ID: typeRifter, Name: "Rifter", GroupID: 25, CategoryID: domain.CategoryShip, Volume: 27289, Capacity: 140, DroneCapacity: 10},
		typeContainer: {ID: typeContainer, Name: "Small Secure Container", GroupID: 340, CategoryID: 17, Volume: 100, Capacity: 120},
		typeModule:    {ID: typeModule, Name: "Damage Control I", GroupID: 60, CategoryID: 7, Volume: 5},
		typeDrone:     {ID: typeDrone, Name: "Hobgoblin I", GroupID: 100, CategoryID: 18, Volume: 5},
		typeBlueprint: {ID: typeBlueprint, Name: "Rifter Blueprint", GroupID: 105, CategoryID: domain.CategoryBlueprint, Volume: 0.01},
		typeCharacter: {ID: typeCharacter, Name: "Character", GroupID: domain.GroupCharacter, CategoryID: 1},
		typeStation:   {ID: typeStation, Name: "Station", GroupID: domain.GroupStation, CategoryID: 3},
		typeSun:       {ID: typeSun, Name: "Sun G5", GroupID: 6, CategoryID: domain.CategoryCelestial},
		typeSkill:     {ID: typeSkill, Name: "Gunnery", GroupID: 255, CategoryID: 16, Volume: 0.01},
	}
}

type sentChange struct {
	owner  domain.OwnerID
	change domain.ChangeRecord
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentChange
}

func (s *recordingSink) Notify(_ context.Context, owner domain.OwnerID, change domain.ChangeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentChange{owner: owner, change: change})
}

func (s *recordingSink) forItem(id domain.ItemID) []sentChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentChange
	for _, c := range s.sent {
		if c.change.Row.ItemID == id {
			out = append(out, c)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

var errBoom = errors.New("boom")

// flakyStore fails selected calls on demand.
type flakyStore struct {
	*memory.Store
	failSave     atomic.Bool
	failSaveID   atomic.Uint32
	failContents atomic.Bool
	failDelete   atomic.Bool
	loads        atomic.Int64
}

func (s *flakyStore) SaveItem(ctx context.Context, id domain.ItemID, data domain.ItemData) error {
	if s.failSave.Load() || s.failSaveID.Load() == uint32(id) {
		return errBoom
	}
	return s.Store.SaveItem(ctx, id, data)
}

func (s *flakyStore) GetItemContents(ctx context.Context, id domain.ItemID) ([]domain.ItemID, error) {
	if s.failContents.Load() {
		return nil, errBoom
	}
	return s.Store.GetItemContents(ctx, id)
}

func (s *flakyStore) DeleteItem(ctx context.Context, id domain.ItemID) error {
	if s.failDelete.Load() {
		return errBoom
	}
	return s.Store.DeleteItem(ctx, id)
}

func (s *flakyStore) LoadItem(ctx context.Context, id domain.ItemID) (domain.ItemData, error) {
	s.loads.Add(1)
	// widen the window for concurrent loads of one id
	time.Sleep(time.Millisecond)
	return s.Store.LoadItem(ctx, id)
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *flakyStore
	sink    *recordingSink
	factory *Factory
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := &flakyStore{Store: memory.NewStore()}
	sink := &recordingSink{}
	opts = append([]Option{WithNotifier(sink)}, opts...)
	f := NewFactory(store, testCatalog(), opts...)
	t.Cleanup(f.Close)
	return &fixture{t: t, ctx: context.Background(), store: store, sink: sink, factory: f}
}

func (fx *fixture) spawn(data domain.ItemData) *Item {
	fx.t.Helper()
	it, err := fx.factory.SpawnItem(fx.ctx, data)
	if err != nil {
		fx.t.Fatalf("spawn %d: %v", data.TypeID, err)
	}
	return it
}

// insertRow writes a row straight into the store, bypassing the factory.
func (fx *fixture) insertRow(data domain.ItemData) domain.ItemID {
	fx.t.Helper()
	id, err := fx.store.Store.NewItem(fx.ctx, data)
	if err != nil {
		fx.t.Fatalf("insert row: %v", err)
	}
	return id
}

func (fx *fixture) get(id domain.ItemID, recurse bool) *Item {
	fx.t.Helper()
	it, err := fx.factory.GetItem(fx.ctx, id, recurse)
	if err != nil {
		fx.t.Fatalf("get item %d: %v", id, err)
	}
	return it
}

func (fx *fixture) ship(owner domain.OwnerID) *Item {
	fx.t.Helper()
	return fx.spawn(domain.NewSingletonData(typeRifter, owner, solarSystem, domain.FlagHangar, ""))
}

func (fx *fixture) stack(typeID domain.TypeID, owner domain.OwnerID, location domain.ItemID, flag domain.Flag, qty uint32) *Item {
	fx.t.Helper()
	return fx.spawn(domain.NewStackData(typeID, owner, location, flag, qty))
}

func (fx *fixture) loadContents(it *Item) {
	fx.t.Helper()
	if err := it.LoadContents(fx.ctx, false); err != nil {
		fx.t.Fatalf("load contents of %d: %v", it.ID(), err)
	}
}

func expectNotFound(t *testing.T, err error) {
	t.Helper()
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func expectValidation(t *testing.T, err error) {
	t.Helper()
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func expectViolation(t *testing.T, err error) {
	t.Helper()
	var iv *domain.InvariantViolation
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
}

func ids(items []*Item) []domain.ItemID {
	out := make([]domain.ItemID, len(items))
	for i, it := range items {
		out[i] = it.ID()
	}
	return out
}
