package item

import (
	"context"

	"itemcore/pkg/domain"
)

// Kind names the construction variant an item was built as.
type Kind string

// Built-in variants.
const (
	KindGeneric   Kind = "item"
	KindBlueprint Kind = "blueprint"
	KindCelestial Kind = "celestial"
	KindShip      Kind = "ship"
	KindCharacter Kind = "character"
)

// Variant describes how items of a taxonomy class are built.
type Variant struct {
	Kind Kind
	// RefuseSpawn, when set, makes SpawnItem fail with ErrCreationRefused.
	// Existing rows still load.
	RefuseSpawn string
	// Defaults supplies attributes written with a newly spawned row. Values
	// passed by the caller win.
	Defaults func() domain.Attributes
}

type variantKey struct {
	category domain.CategoryID
	group    domain.GroupID
}

type variantTable map[variantKey]Variant

func defaultVariants() variantTable {
	t := make(variantTable)
	t.register(domain.CategoryBlueprint, 0, Variant{Kind: KindBlueprint, Defaults: blueprintDefaults})
	t.register(domain.CategoryCelestial, 0, Variant{Kind: KindCelestial, RefuseSpawn: "celestial objects are static data"})
	t.register(domain.CategoryShip, 0, Variant{Kind: KindShip})
	t.register(0, domain.GroupCharacter, Variant{Kind: KindCharacter, RefuseSpawn: "characters are created by the character service"})
	t.register(0, domain.GroupStation, Variant{Kind: KindCelestial, RefuseSpawn: "stations are static data"})
	return t
}

func (t variantTable) register(category domain.CategoryID, group domain.GroupID, v Variant) {
	if v.Kind == "" {
		v.Kind = KindGeneric
	}
	t[variantKey{category: category, group: group}] = v
}

// resolve prefers an exact (category, group) entry, then category-wide, then
// group-wide entries, and falls back to the generic item.
func (t variantTable) resolve(typ domain.Type) Variant {
	for _, key := range []variantKey{
		{category: typ.CategoryID, group: typ.GroupID},
		{category: typ.CategoryID},
		{group: typ.GroupID},
	} {
		if key == (variantKey{}) {
			continue
		}
		if v, ok := t[key]; ok {
			return v
		}
	}
	return Variant{Kind: KindGeneric}
}

func blueprintDefaults() domain.Attributes {
	return domain.Attributes{
		domain.AttrBlueprintCopy:              0,
		domain.AttrBlueprintMaterialLevel:     0,
		domain.AttrBlueprintProductivityLevel: 0,
		domain.AttrBlueprintRunsRemaining:     -1,
	}
}

// Blueprint is the manufacturing view of a blueprint item.
type Blueprint struct{ *Item }

// Blueprint returns the blueprint view when the item was built as one.
func (it *Item) Blueprint() (Blueprint, bool) {
	return Blueprint{it}, it.kind == KindBlueprint
}

// Copy reports whether the blueprint is a copy rather than an original.
func (b Blueprint) Copy() bool {
	v, _ := b.Attribute(domain.AttrBlueprintCopy)
	return v != 0
}

func (b Blueprint) MaterialLevel() int {
	v, _ := b.Attribute(domain.AttrBlueprintMaterialLevel)
	return int(v)
}

func (b Blueprint) ProductivityLevel() int {
	v, _ := b.Attribute(domain.AttrBlueprintProductivityLevel)
	return int(v)
}

// LicensedRunsRemaining is -1 for unlimited originals.
func (b Blueprint) LicensedRunsRemaining() int {
	v, ok := b.Attribute(domain.AttrBlueprintRunsRemaining)
	if !ok {
		return -1
	}
	return int(v)
}

func (b Blueprint) SetCopy(ctx context.Context, isCopy bool) error {
	v := 0.0
	if isCopy {
		v = 1
	}
	return b.SetAttribute(ctx, domain.AttrBlueprintCopy, v)
}

func (b Blueprint) SetMaterialLevel(ctx context.Context, level int) error {
	return b.SetAttribute(ctx, domain.AttrBlueprintMaterialLevel, float64(level))
}

func (b Blueprint) SetProductivityLevel(ctx context.Context, level int) error {
	return b.SetAttribute(ctx, domain.AttrBlueprintProductivityLevel, float64(level))
}

func (b Blueprint) SetLicensedRunsRemaining(ctx context.Context, runs int) error {
	return b.SetAttribute(ctx, domain.AttrBlueprintRunsRemaining, float64(runs))
}

// Ship is the fitting view of a ship item.
type Ship struct{ *Item }

// Ship returns the ship view when the item was built as one.
func (it *Item) Ship() (Ship, bool) {
	return Ship{it}, it.kind == KindShip
}

// Modules returns the loaded items fitted in low, med, high, and fixed slots.
func (s Ship) Modules(acquire bool) []*Item {
	return s.FindByFlagRange(domain.FlagLowSlot0, domain.FlagFixedSlot, acquire)
}

// Rigs returns the loaded items fitted in rig slots.
func (s Ship) Rigs(acquire bool) []*Item {
	return s.FindByFlagRange(domain.FlagRigSlot0, domain.FlagRigSlot7, acquire)
}

// Character is the view of a character item.
type Character struct{ *Item }

// Character returns the character view when the item was built as one.
func (it *Item) Character() (Character, bool) {
	return Character{it}, it.kind == KindCharacter
}

// Skills returns the loaded trained and training skills.
func (c Character) Skills(acquire bool) []*Item {
	return c.FindByFlagSet([]domain.Flag{domain.FlagSkill, domain.FlagInTraining}, acquire)
}

// SkillInTraining returns the skill currently in training, if loaded.
func (c Character) SkillInTraining(acquire bool) (*Item, bool) {
	return c.FindFirstByFlag(domain.FlagInTraining, acquire)
}
