package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"itemcore/internal/blob"
	"itemcore/internal/catalog"
	"itemcore/internal/infra/persistence/memory"
	"itemcore/internal/item"
	"itemcore/pkg/domain"
)

const owner domain.OwnerID = 90000001

type fixture struct {
	store    *memory.Store
	factory  *item.Factory
	blobs    blob.Store
	exporter *Exporter
	shipID   domain.ItemID
	boxID    domain.ItemID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	types, err := catalog.New(
		domain.Type{ID: 34, Name: "Tritanium", GroupID: 18, CategoryID: 4, Volume: 0.01},
		domain.Type{ID: 587, Name: "Rifter", GroupID: 25, CategoryID: domain.CategoryShip, Capacity: 140},
		domain.Type{ID: 3467, Name: "Small Secure Container", GroupID: 340, CategoryID: 17, Capacity: 120},
		domain.Type{ID: 2046, Name: "Damage Control I", GroupID: 60, CategoryID: 7, Volume: 5},
	)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store := memory.NewStore()
	factory := item.NewFactory(store, types)
	t.Cleanup(factory.Close)

	ctx := context.Background()
	insert := func(d domain.ItemData) domain.ItemID {
		id, err := store.NewItem(ctx, d)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		return id
	}
	ship := insert(domain.NewSingletonData(587, owner, 60003760, domain.FlagHangar, "Rifter"))
	insert(domain.NewStackData(34, owner, ship, domain.FlagCargoHold, 500))
	box := insert(domain.NewSingletonData(3467, owner, ship, domain.FlagCargoHold, "loot"))
	insert(domain.NewSingletonData(2046, owner, box, domain.FlagAnywhere, ""))

	clock := time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)
	blobs := blob.NewMemory()
	exp := New(factory, blobs, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	return &fixture{store: store, factory: factory, blobs: blobs, exporter: exp, shipID: ship, boxID: box}
}

func TestExportStoresRecursiveTree(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	info, err := fx.exporter.Export(ctx, fx.shipID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(info.Key, Prefix(fx.shipID)) || !strings.HasSuffix(info.Key, ".json") {
		t.Fatalf("unexpected key %s", info.Key)
	}
	if info.ContentType != "application/json" || info.Metadata["items"] != "4" {
		t.Fatalf("unexpected info %+v", info)
	}

	snap, err := fx.exporter.Load(ctx, info.Key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.ContainerID != fx.shipID || snap.ItemCount != 4 {
		t.Fatalf("unexpected snapshot header %+v", snap)
	}
	if snap.Root.ItemID != fx.shipID || len(snap.Root.Contents) != 2 {
		t.Fatalf("unexpected root %+v", snap.Root)
	}
	var box *Node
	for i := range snap.Root.Contents {
		if snap.Root.Contents[i].ItemID == fx.boxID {
			box = &snap.Root.Contents[i]
		}
	}
	if box == nil || len(box.Contents) != 1 || box.Contents[0].TypeID != 2046 {
		t.Fatalf("expected nested module inside the container, got %+v", box)
	}
}

func TestExportReleasesRoot(t *testing.T) {
	fx := newFixture(t)
	if _, err := fx.exporter.Export(context.Background(), fx.shipID); err != nil {
		t.Fatalf("export: %v", err)
	}
	ship, ok := fx.factory.GetIfLoaded(fx.shipID)
	if !ok {
		t.Fatalf("ship should stay resident")
	}
	defer ship.Release()
	// cache reference plus the one taken by GetIfLoaded
	if got := ship.RefCount(); got != 2 {
		t.Fatalf("expected refcount 2, got %d", got)
	}
}

func TestExportAfterShallowLoadIncludesNestedItems(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	ship, err := fx.factory.GetItem(ctx, fx.shipID, false)
	if err != nil {
		t.Fatalf("get ship: %v", err)
	}
	defer ship.Release()
	if err := ship.LoadContents(ctx, false); err != nil {
		t.Fatalf("load contents: %v", err)
	}

	info, err := fx.exporter.Export(ctx, fx.shipID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if info.Metadata["items"] != "4" {
		t.Fatalf("expected the whole tree exported, got %s items", info.Metadata["items"])
	}
}

func TestListReturnsExportsInOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first, err := fx.exporter.Export(ctx, fx.shipID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	second, err := fx.exporter.Export(ctx, fx.shipID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := fx.exporter.Export(ctx, fx.boxID); err != nil {
		t.Fatalf("export box: %v", err)
	}
	list, err := fx.exporter.List(ctx, fx.shipID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != first.Key || list[1].Key != second.Key {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestExportErrors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.exporter.Export(ctx, 424242)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := fx.exporter.Load(ctx, "inventories/1/missing.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected blob.ErrNotFound, got %v", err)
	}
}

func waitForJob(t *testing.T, w *Worker, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := w.Get(id)
		if !ok {
			t.Fatalf("job %s vanished", id)
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestWorkerRunsExports(t *testing.T) {
	fx := newFixture(t)
	w := NewWorker(fx.exporter, 0)
	w.Start()
	t.Cleanup(func() { _ = w.Stop(context.Background()) })

	job, err := w.Enqueue(fx.shipID, "gm")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued || job.ID == "" {
		t.Fatalf("unexpected queued job %+v", job)
	}
	done := waitForJob(t, w, job.ID)
	if done.Status != StatusSucceeded || done.Artifact == nil || done.CompletedAt == nil {
		t.Fatalf("unexpected finished job %+v", done)
	}
	if !strings.HasPrefix(done.Artifact.Key, Prefix(fx.shipID)) {
		t.Fatalf("unexpected artifact %+v", done.Artifact)
	}

	failed, err := w.Enqueue(777, "gm")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if got := waitForJob(t, w, failed.ID); got.Status != StatusFailed || got.Error == "" {
		t.Fatalf("expected failed job, got %+v", got)
	}
	if _, ok := w.Get("missing"); ok {
		t.Fatalf("unknown job id should not resolve")
	}
}

func TestWorkerQueueLimits(t *testing.T) {
	fx := newFixture(t)
	w := NewWorker(fx.exporter, 1) // not started
	if _, err := w.Enqueue(0, ""); err == nil {
		t.Fatalf("expected validation error for zero container")
	}
	if _, err := w.Enqueue(fx.shipID, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := w.Enqueue(fx.shipID, ""); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
