package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestItemDataConstructors(t *testing.T) {
	stack := NewStackData(34, 90000001, 60003760, FlagHangar, 500)
	if stack.Singleton || stack.Quantity != 500 || stack.Name != "" {
		t.Fatalf("unexpected stack %+v", stack)
	}
	ship := NewSingletonData(587, 90000001, 60003760, FlagHangar, "Rifter")
	if !ship.Singleton || ship.Quantity != 1 || ship.Name != "Rifter" {
		t.Fatalf("unexpected singleton %+v", ship)
	}
}

func TestNormalize(t *testing.T) {
	d := ItemData{Name: "  Rifter \n", Singleton: true, Quantity: 7}.Normalize()
	if d.Name != "Rifter" || d.Quantity != 1 {
		t.Fatalf("unexpected normalized data %+v", d)
	}
	stack := ItemData{Quantity: 7}.Normalize()
	if stack.Quantity != 7 {
		t.Fatalf("stacks keep their quantity, got %d", stack.Quantity)
	}
}

func TestFlagString(t *testing.T) {
	cases := map[Flag]string{
		FlagHangar:       "hangar",
		FlagCargoHold:    "cargo",
		FlagLowSlot0 + 2: "low_slot",
		FlagRigSlot7:     "rig_slot",
		Flag(12345):      "flag_12345",
	}
	for flag, want := range cases {
		if got := flag.String(); got != want {
			t.Errorf("Flag(%d).String() = %q, want %q", uint16(flag), got, want)
		}
	}
}

func TestAttributesClone(t *testing.T) {
	var nilAttrs Attributes
	if nilAttrs.Clone() != nil {
		t.Fatalf("nil clone should stay nil")
	}
	a := Attributes{AttrSkillLevel: 3}
	b := a.Clone()
	b[AttrSkillLevel] = 5
	if a[AttrSkillLevel] != 3 {
		t.Fatalf("clone aliases the source map")
	}
}

func TestChangeRecordEnvelope(t *testing.T) {
	rec := NewChangeRecord(Row{ItemID: 100001, TypeID: 34, Quantity: 40}).
		With(FieldQuantity, uint32(100)).
		With(FieldLocationID, ItemID(60003760))
	raw, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Event   string         `json:"event"`
		Row     Row            `json:"row"`
		Changes map[string]any `json:"changes"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Event != "OnItemChange" || decoded.Row.ItemID != 100001 {
		t.Fatalf("unexpected envelope %s", raw)
	}
	if decoded.Changes["quantity"] != float64(100) || decoded.Changes["locationID"] != float64(60003760) {
		t.Fatalf("unexpected changes %v", decoded.Changes)
	}

	clone := rec.Clone()
	clone.Changes[FieldOwnerID] = OwnerID(1)
	if _, ok := rec.Changes[FieldOwnerID]; ok {
		t.Fatalf("clone shares the delta map")
	}
	var zero ChangeRecord
	if got := zero.With(FieldFlag, FlagHangar); len(got.Changes) != 1 {
		t.Fatalf("With on a zero record should allocate the delta")
	}
}

func TestErrorsFormatAndUnwrap(t *testing.T) {
	if got := ItemNotFound(5).Error(); got != "item 5 not found" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := TypeNotFound(34).Error(); got != "type 34 not found" {
		t.Fatalf("unexpected message %q", got)
	}
	cause := errors.New("disk full")
	var err error = &StoreError{Op: "save", ItemID: 9, Err: cause}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), cause) {
		t.Fatalf("StoreError must unwrap to its cause")
	}
	cases := map[error]string{
		ValidationError{Op: "split", ItemID: 11, Reason: "split quantity must be positive"}:     "split item 11",
		ErrCreationRefused{TypeID: 6, Name: "Sun", Reason: "celestial objects are static data"}: "(type 6)",
		&InvariantViolation{ItemID: 12, Detail: "two instances"}:                                "item 12: two instances",
	}
	for e, want := range cases {
		if !strings.Contains(e.Error(), want) {
			t.Errorf("%q lacks %q", e.Error(), want)
		}
	}
}
