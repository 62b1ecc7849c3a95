package item

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"itemcore/pkg/domain"
)

func TestGetItemReturnsSingleCachedInstance(t *testing.T) {
	fx := newFixture(t)
	id := fx.insertRow(domain.NewStackData(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 10))

	a := fx.get(id, false)
	b := fx.get(id, false)
	if a != b {
		t.Fatalf("expected one instance per id")
	}
	if a.RefCount() != 3 {
		t.Fatalf("expected cache plus two handles, got %d", a.RefCount())
	}
	if fx.store.loads.Load() != 1 {
		t.Fatalf("expected a single store load, got %d", fx.store.loads.Load())
	}
	_ = a.Release()
	_ = b.Release()
	if a.RefCount() != 1 || a.Destroyed() {
		t.Fatalf("expected cache reference to survive handle release")
	}
	if got, ok := fx.factory.GetIfLoaded(id); !ok || got != a {
		t.Fatalf("expected resident lookup to hit")
	} else {
		_ = got.Release()
	}
}

func TestConcurrentGetItemCollapsesLoads(t *testing.T) {
	fx := newFixture(t)
	id := fx.insertRow(domain.NewStackData(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 10))

	const workers = 16
	results := make([]*Item, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			it, err := fx.factory.GetItem(fx.ctx, id, false)
			if err != nil {
				t.Errorf("get item: %v", err)
				return
			}
			results[i] = it
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d observed a second instance", i)
		}
	}
	if got := results[0].RefCount(); got != workers+1 {
		t.Fatalf("expected %d references, got %d", workers+1, got)
	}
	if fx.factory.Len() != 1 {
		t.Fatalf("expected one resident item, got %d", fx.factory.Len())
	}
}

func TestGetItemAndTypeNotFound(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.factory.GetItem(fx.ctx, 424242, false)
	expectNotFound(t, err)
	_, err = fx.factory.GetItem(fx.ctx, 0, false)
	expectNotFound(t, err)

	_, err = fx.factory.GetType(99999)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityItemType {
		t.Fatalf("expected type not found, got %v", err)
	}
	if _, ok := fx.factory.GetIfLoaded(424242); ok {
		t.Fatalf("expected no resident item")
	}
}

func TestSpawnItem(t *testing.T) {
	fx := newFixture(t)
	ore := fx.stack(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 25)
	defer ore.Release()

	if ore.Name() != "Tritanium" {
		t.Fatalf("expected empty name to default to type name, got %q", ore.Name())
	}
	if ore.Kind() != KindGeneric {
		t.Fatalf("expected generic kind, got %s", ore.Kind())
	}
	row, err := fx.store.LoadItem(fx.ctx, ore.ID())
	if err != nil || row.Quantity != 25 || row.Name != "Tritanium" {
		t.Fatalf("expected persisted row, got %+v %v", row, err)
	}

	single := fx.spawn(domain.ItemData{TypeID: typeModule, OwnerID: ownerAlice, LocationID: solarSystem, Flag: domain.FlagHangar, Singleton: true, Quantity: 7})
	defer single.Release()
	if single.Quantity() != 1 {
		t.Fatalf("expected singleton quantity normalized to 1, got %d", single.Quantity())
	}

	if _, err := fx.factory.SpawnItem(fx.ctx, domain.NewStackData(99999, ownerAlice, solarSystem, domain.FlagHangar, 1)); err == nil {
		t.Fatalf("expected unknown type to be refused")
	} else {
		expectNotFound(t, err)
	}
}

func TestSpawnRefusedForStaticVariants(t *testing.T) {
	fx := newFixture(t)
	cases := []struct {
		name   string
		typeID domain.TypeID
	}{
		{"character", typeCharacter},
		{"station", typeStation},
		{"celestial", typeSun},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.factory.SpawnItem(fx.ctx, domain.NewSingletonData(tc.typeID, ownerAlice, solarSystem, domain.FlagAnywhere, "x"))
			var refused domain.ErrCreationRefused
			if !errors.As(err, &refused) {
				t.Fatalf("expected creation refused, got %v", err)
			}
			if refused.TypeID != tc.typeID {
				t.Fatalf("unexpected refusal %+v", refused)
			}
		})
	}
	if fx.store.Len() != 0 {
		t.Fatalf("expected no rows written, got %d", fx.store.Len())
	}
}

func TestVariantConstruction(t *testing.T) {
	fx := newFixture(t)

	stationID := fx.insertRow(domain.NewSingletonData(typeStation, domain.OwnerSystem, solarSystem, domain.FlagAnywhere, "Jita IV - Moon 4"))
	charID := fx.insertRow(domain.NewSingletonData(typeCharacter, ownerAlice, stationID, domain.FlagAnywhere, "Alice"))

	station := fx.get(stationID, false)
	defer station.Release()
	if station.Kind() != KindCelestial {
		t.Fatalf("expected station to load as celestial, got %s", station.Kind())
	}

	char := fx.get(charID, false)
	defer char.Release()
	if _, ok := char.Character(); !ok {
		t.Fatalf("expected character variant")
	}

	ship := fx.ship(ownerAlice)
	defer ship.Release()
	if _, ok := ship.Ship(); !ok {
		t.Fatalf("expected ship variant")
	}
	if _, ok := ship.Blueprint(); ok {
		t.Fatalf("ship must not expose a blueprint view")
	}

	bpItem := fx.spawn(domain.NewSingletonData(typeBlueprint, ownerAlice, solarSystem, domain.FlagHangar, ""))
	defer bpItem.Release()
	bp, ok := bpItem.Blueprint()
	if !ok {
		t.Fatalf("expected blueprint variant")
	}
	if bp.Copy() || bp.MaterialLevel() != 0 || bp.ProductivityLevel() != 0 || bp.LicensedRunsRemaining() != -1 {
		t.Fatalf("unexpected blueprint defaults: copy=%v ml=%d pl=%d runs=%d", bp.Copy(), bp.MaterialLevel(), bp.ProductivityLevel(), bp.LicensedRunsRemaining())
	}
	if err := bp.SetMaterialLevel(fx.ctx, 10); err != nil {
		t.Fatalf("set material level: %v", err)
	}
	attrs, _ := fx.store.LoadAttributes(fx.ctx, bpItem.ID())
	if attrs[domain.AttrBlueprintMaterialLevel] != 10 {
		t.Fatalf("expected material level persisted, got %v", attrs)
	}
}

func TestSpawnWithAttributesOverridesDefaults(t *testing.T) {
	fx := newFixture(t)
	it, err := fx.factory.SpawnItemWithAttributes(fx.ctx,
		domain.NewSingletonData(typeBlueprint, ownerAlice, solarSystem, domain.FlagHangar, ""),
		domain.Attributes{domain.AttrBlueprintCopy: 1, domain.AttrBlueprintRunsRemaining: 5})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer it.Release()
	bp, _ := it.Blueprint()
	if !bp.Copy() || bp.LicensedRunsRemaining() != 5 {
		t.Fatalf("expected caller attributes to win, got copy=%v runs=%d", bp.Copy(), bp.LicensedRunsRemaining())
	}
}

func TestWithVariantExtendsTable(t *testing.T) {
	fx := newFixture(t, WithVariant(4, 18, Variant{Kind: "ore", RefuseSpawn: "ore comes from mining"}))
	_, err := fx.factory.SpawnItem(fx.ctx, domain.NewStackData(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 1))
	var refused domain.ErrCreationRefused
	if !errors.As(err, &refused) {
		t.Fatalf("expected custom variant to refuse spawn, got %v", err)
	}
	id := fx.insertRow(domain.NewStackData(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 1))
	it := fx.get(id, false)
	defer it.Release()
	if it.Kind() != "ore" {
		t.Fatalf("expected custom kind, got %s", it.Kind())
	}
}

func TestCloseReleasesCacheReferences(t *testing.T) {
	fx := newFixture(t)
	held := fx.stack(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 1)
	dropped := fx.stack(typePyerite, ownerAlice, solarSystem, domain.FlagHangar, 1)
	_ = dropped.Release()
	if got := fx.factory.Resident(); len(got) != 2 || got[0] != held.ID() || got[1] != dropped.ID() {
		t.Fatalf("unexpected resident ids %v", got)
	}

	fx.factory.Close()
	if fx.factory.Len() != 0 {
		t.Fatalf("expected empty cache after close")
	}
	if !dropped.Destroyed() {
		t.Fatalf("expected unreferenced item to be destroyed on close")
	}
	if held.Destroyed() || held.RefCount() != 1 {
		t.Fatalf("expected caller handle to outlive close, refs=%d", held.RefCount())
	}
	if _, err := fx.factory.GetItem(fx.ctx, held.ID(), false); !errors.Is(err, ErrFactoryClosed) {
		t.Fatalf("expected closed factory error, got %v", err)
	}
	_ = held.Release()
	if !held.Destroyed() {
		t.Fatalf("expected last release to destroy")
	}
}

type captureMetrics struct {
	mu         sync.Mutex
	ops        map[string][]bool
	violations int
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ops == nil {
		c.ops = make(map[string][]bool)
	}
	c.ops[op] = append(c.ops[op], success)
}

func (c *captureMetrics) ObserveInvariantViolation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations++
}

func (c *captureMetrics) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.ops[op] {
		if s == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	mu    sync.Mutex
	ended map[string][]error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	if s.tracer.ended == nil {
		s.tracer.ended = make(map[string][]error)
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

func TestFactoryObservability(t *testing.T) {
	metrics := &captureMetrics{}
	tracer := &captureTracer{}
	fx := newFixture(t, WithMetricsRecorder(metrics), WithTracer(tracer))

	it := fx.stack(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 5)
	defer it.Release()
	if err := it.SetQuantity(fx.ctx, 6, false); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if err := it.AlterQuantity(fx.ctx, -100, false); err == nil {
		t.Fatalf("expected negative quantity to be refused")
	}
	if !metrics.has("factory.spawn_item", true) || !metrics.has("item.set_quantity", true) {
		t.Fatalf("expected successful operations recorded, got %v", metrics.ops)
	}
	if !metrics.has("item.alter_quantity", false) {
		t.Fatalf("expected failed alter_quantity recorded")
	}
	tracer.mu.Lock()
	spans := len(tracer.ended["item.alter_quantity"])
	tracer.mu.Unlock()
	if spans != 1 {
		t.Fatalf("expected one alter_quantity span, got %d", spans)
	}

	_ = it.Acquire()
	_ = it.Release()
	_ = it.Release()
	_ = it.Release()
	if err := it.Release(); err == nil {
		t.Fatalf("expected over-release to be reported")
	} else {
		expectViolation(t, err)
	}
	if metrics.violations != 1 {
		t.Fatalf("expected one violation counted, got %d", metrics.violations)
	}
}

func TestStrictInvariantsPanic(t *testing.T) {
	fx := newFixture(t, WithStrictInvariants(true))
	it := fx.stack(typeTritanium, ownerAlice, solarSystem, domain.FlagHangar, 5)
	_ = it.Release()
	fx.factory.Close()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic on acquire of destroyed item")
		}
		if _, ok := r.(*domain.InvariantViolation); !ok {
			t.Fatalf("expected invariant violation panic, got %T", r)
		}
	}()
	_ = it.Acquire()
}
