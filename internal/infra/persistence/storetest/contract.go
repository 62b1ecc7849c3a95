// Package storetest holds the behavioural contract every domain.ItemStore
// backend must satisfy.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"itemcore/pkg/domain"
)

// Factory opens an empty store for one subtest.
type Factory func(t *testing.T) domain.ItemStore

// Run exercises the store contract against fresh stores from open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	t.Run("crud", func(t *testing.T) { testCRUD(t, open(t)) })
	t.Run("contents", func(t *testing.T) { testContents(t, open(t)) })
	t.Run("attributes", func(t *testing.T) { testAttributes(t, open(t)) })
}

func expectNotFound(t *testing.T, err error) {
	t.Helper()
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testCRUD(t *testing.T, store domain.ItemStore) {
	ctx := context.Background()
	data := domain.NewSingletonData(587, 90000001, 60003760, domain.FlagHangar, "Rifter")
	data.Position = domain.Position{X: 1.5, Y: -2, Z: 3.25}
	data.CustomInfo = "fitted"
	id, err := store.NewItem(ctx, data)
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero id")
	}
	got, err := store.LoadItem(ctx, id)
	if err != nil {
		t.Fatalf("load item: %v", err)
	}
	if got != data {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", data, got)
	}

	other, err := store.NewItem(ctx, domain.NewStackData(34, 90000001, 60003760, domain.FlagHangar, 100))
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	if other == id {
		t.Fatalf("expected distinct ids, got %d twice", id)
	}

	data.Name = "Renamed"
	data.Contraband = true
	data.Flag = domain.FlagCargoHold
	if err := store.SaveItem(ctx, id, data); err != nil {
		t.Fatalf("save item: %v", err)
	}
	got, _ = store.LoadItem(ctx, id)
	if got.Name != "Renamed" || !got.Contraband || got.Flag != domain.FlagCargoHold {
		t.Fatalf("save not persisted: %+v", got)
	}
	expectNotFound(t, store.SaveItem(ctx, id+1000, data))

	if err := store.DeleteItem(ctx, id); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	_, err = store.LoadItem(ctx, id)
	expectNotFound(t, err)
	if err := store.DeleteItem(ctx, id); err != nil {
		t.Fatalf("deleting a missing row must not fail: %v", err)
	}
}

func testContents(t *testing.T, store domain.ItemStore) {
	ctx := context.Background()
	const hangar, ship domain.ItemID = 60003760, 60003761
	var inHangar []domain.ItemID
	for i := 0; i < 3; i++ {
		id, err := store.NewItem(ctx, domain.NewStackData(34, 90000001, hangar, domain.FlagHangar, uint32(i+1)))
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		inHangar = append(inHangar, id)
	}
	got, err := store.GetItemContents(ctx, hangar)
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if !reflect.DeepEqual(got, inHangar) {
		t.Fatalf("expected %v, got %v", inHangar, got)
	}

	moved, _ := store.LoadItem(ctx, inHangar[1])
	moved.LocationID = ship
	if err := store.SaveItem(ctx, inHangar[1], moved); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = store.GetItemContents(ctx, hangar)
	if !reflect.DeepEqual(got, []domain.ItemID{inHangar[0], inHangar[2]}) {
		t.Fatalf("expected listing to follow the move, got %v", got)
	}
	got, _ = store.GetItemContents(ctx, ship)
	if !reflect.DeepEqual(got, []domain.ItemID{inHangar[1]}) {
		t.Fatalf("expected moved item in ship, got %v", got)
	}
	got, err = store.GetItemContents(ctx, 42)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty listing, got %v, %v", got, err)
	}
}

func testAttributes(t *testing.T, store domain.ItemStore) {
	ctx := context.Background()
	id, err := store.NewItem(ctx, domain.NewSingletonData(681, 90000001, 60003760, domain.FlagHangar, ""))
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	empty, err := store.LoadAttributes(ctx, id)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected no attributes, got %v, %v", empty, err)
	}

	attrs := domain.Attributes{
		domain.AttrBlueprintMaterialLevel: 10,
		domain.AttrBlueprintRunsRemaining: -1,
	}
	if err := store.SaveAttributes(ctx, id, attrs); err != nil {
		t.Fatalf("save attributes: %v", err)
	}
	got, _ := store.LoadAttributes(ctx, id)
	if !reflect.DeepEqual(got, attrs) {
		t.Fatalf("expected %v, got %v", attrs, got)
	}

	replaced := domain.Attributes{domain.AttrBlueprintCopy: 1}
	if err := store.SaveAttributes(ctx, id, replaced); err != nil {
		t.Fatalf("replace attributes: %v", err)
	}
	got, _ = store.LoadAttributes(ctx, id)
	if !reflect.DeepEqual(got, replaced) {
		t.Fatalf("expected replacement %v, got %v", replaced, got)
	}

	expectNotFound(t, store.SaveAttributes(ctx, id+1000, attrs))

	if err := store.DeleteAttributes(ctx, id); err != nil {
		t.Fatalf("delete attributes: %v", err)
	}
	got, _ = store.LoadAttributes(ctx, id)
	if len(got) != 0 {
		t.Fatalf("expected attributes gone, got %v", got)
	}
}
