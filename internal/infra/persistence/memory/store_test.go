package memory

import (
	"context"
	"errors"
	"itemcore/internal/infra/persistence/storetest"
	"itemcore/pkg/domain"
	"testing"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.ItemStore { return NewStore() })
}

func TestStoreCRUDAndContents(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithFirstID(500))

	ship, err := store.NewItem(ctx, domain.NewSingletonData(600, 90, 30000142, domain.FlagHangar, "Rifter"))
	if err != nil {
		t.Fatalf("new ship: %v", err)
	}
	if ship != 500 {
		t.Fatalf("expected first id 500, got %d", ship)
	}
	ore, _ := store.NewItem(ctx, domain.NewStackData(34, 90, ship, domain.FlagCargoHold, 10))
	mod, _ := store.NewItem(ctx, domain.NewSingletonData(2046, 90, ship, domain.FlagLowSlot0, ""))

	contents, err := store.GetItemContents(ctx, ship)
	if err != nil {
		t.Fatalf("contents: %v", err)
	}
	if len(contents) != 2 || contents[0] != ore || contents[1] != mod {
		t.Fatalf("unexpected contents %v", contents)
	}

	data, err := store.LoadItem(ctx, ore)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	data.LocationID = 30000142
	if err := store.SaveItem(ctx, ore, data); err != nil {
		t.Fatalf("save: %v", err)
	}
	contents, _ = store.GetItemContents(ctx, ship)
	if len(contents) != 1 || contents[0] != mod {
		t.Fatalf("expected reindexed contents, got %v", contents)
	}

	if err := store.DeleteItem(ctx, mod); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteItem(ctx, mod); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
	var nf domain.ErrNotFound
	if _, err := store.LoadItem(ctx, mod); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.SaveItem(ctx, mod, data); !errors.As(err, &nf) {
		t.Fatalf("expected not found on save, got %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", store.Len())
	}
}

func TestStoreAttributes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	id, _ := store.NewItem(ctx, domain.NewStackData(34, 1, 60000004, domain.FlagHangar, 5))

	attrs, err := store.LoadAttributes(ctx, id)
	if err != nil || len(attrs) != 0 {
		t.Fatalf("expected empty attributes, got %v %v", attrs, err)
	}
	in := domain.Attributes{domain.AttrSkillLevel: 3}
	if err := store.SaveAttributes(ctx, id, in); err != nil {
		t.Fatalf("save attrs: %v", err)
	}
	in[domain.AttrSkillLevel] = 5
	got, _ := store.LoadAttributes(ctx, id)
	if got[domain.AttrSkillLevel] != 3 {
		t.Fatalf("expected stored copy to be isolated, got %v", got)
	}
	if err := store.SaveAttributes(ctx, 1, in); err == nil {
		t.Fatalf("expected error saving attributes for missing row")
	}
	if err := store.DeleteAttributes(ctx, id); err != nil {
		t.Fatalf("delete attrs: %v", err)
	}
	got, _ = store.LoadAttributes(ctx, id)
	if len(got) != 0 {
		t.Fatalf("expected attributes cleared, got %v", got)
	}
}
