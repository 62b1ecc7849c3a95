// Package domain defines the persistent item entities, value types, and
// collaborator contracts shared by the item graph and its storage adapters.
package domain

import (
	"strconv"
	"strings"
)

// EntityType identifies the kind of record referenced by errors and change records.
type EntityType string

// Supported entity identifiers.
const (
	// EntityItem identifies a persisted item row.
	EntityItem EntityType = "item"
	// EntityItemType identifies a catalog type definition.
	EntityItemType EntityType = "type"
)

// ItemID uniquely identifies a persisted item. Zero is never a valid item.
type ItemID uint32

// TypeID identifies an entry in the type catalog.
type TypeID uint32

// OwnerID identifies the character or corporation owning an item.
type OwnerID uint32

// GroupID and CategoryID classify a type within the taxonomy.
type (
	GroupID    uint32
	CategoryID uint32
)

// Well-known locations and owners.
const (
	// LocationTemp parks freshly split stacks so they surface as new items.
	LocationTemp ItemID = 1
	// LocationJunk is the invisible location deleted items are moved to.
	LocationJunk ItemID = 6
	// OwnerNone matches every owner in owner-filtered queries.
	OwnerNone OwnerID = 0
	// OwnerSystem is the anonymous owner deleted items are reassigned to.
	OwnerSystem OwnerID = 2
)

// Taxonomy values that select a construction variant.
const (
	CategoryCelestial CategoryID = 2
	CategoryShip      CategoryID = 6
	CategoryBlueprint CategoryID = 9

	GroupCharacter GroupID = 1
	GroupStation   GroupID = 15
)

// Flag tags an item's slot or role inside its container.
type Flag uint16

// Item flags. Values follow the client protocol numbering.
const (
	FlagAnywhere   Flag = 0
	FlagHangar     Flag = 4
	FlagCargoHold  Flag = 5
	FlagSkill      Flag = 7
	FlagLowSlot0   Flag = 11
	FlagLowSlot7   Flag = 18
	FlagMedSlot0   Flag = 19
	FlagMedSlot7   Flag = 26
	FlagHiSlot0    Flag = 27
	FlagHiSlot7    Flag = 34
	FlagFixedSlot  Flag = 35
	FlagInTraining Flag = 61
	FlagDroneBay   Flag = 87
	FlagImplant    Flag = 89
	FlagRigSlot0   Flag = 92
	FlagRigSlot7   Flag = 99
)

var flagNames = map[Flag]string{
	FlagAnywhere:   "anywhere",
	FlagHangar:     "hangar",
	FlagCargoHold:  "cargo",
	FlagSkill:      "skill",
	FlagFixedSlot:  "fixed_slot",
	FlagInTraining: "skill_in_training",
	FlagDroneBay:   "drone_bay",
	FlagImplant:    "implant",
}

// String renders a flag for logs.
func (f Flag) String() string {
	if name, ok := flagNames[f]; ok {
		return name
	}
	switch {
	case f >= FlagLowSlot0 && f <= FlagLowSlot7:
		return "low_slot"
	case f >= FlagMedSlot0 && f <= FlagMedSlot7:
		return "med_slot"
	case f >= FlagHiSlot0 && f <= FlagHiSlot7:
		return "hi_slot"
	case f >= FlagRigSlot0 && f <= FlagRigSlot7:
		return "rig_slot"
	}
	return "flag_" + strconv.FormatUint(uint64(f), 10)
}

// Position is a point in space.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// ItemData carries the persisted scalar fields of an item.
type ItemData struct {
	Name       string   `json:"name"`
	TypeID     TypeID   `json:"type_id"`
	OwnerID    OwnerID  `json:"owner_id"`
	LocationID ItemID   `json:"location_id"`
	Flag       Flag     `json:"flag"`
	Contraband bool     `json:"contraband"`
	Singleton  bool     `json:"singleton"`
	Quantity   uint32   `json:"quantity"`
	Position   Position `json:"position"`
	CustomInfo string   `json:"custom_info,omitempty"`
}

// NewStackData describes a fungible stack of the given quantity.
func NewStackData(typeID TypeID, owner OwnerID, location ItemID, flag Flag, quantity uint32) ItemData {
	return ItemData{
		TypeID:     typeID,
		OwnerID:    owner,
		LocationID: location,
		Flag:       flag,
		Quantity:   quantity,
	}
}

// NewSingletonData describes a unique, non-stackable item.
func NewSingletonData(typeID TypeID, owner OwnerID, location ItemID, flag Flag, name string) ItemData {
	return ItemData{
		Name:       name,
		TypeID:     typeID,
		OwnerID:    owner,
		LocationID: location,
		Flag:       flag,
		Singleton:  true,
		Quantity:   1,
	}
}

// Normalize enforces singleton => quantity == 1 and trims the name.
func (d ItemData) Normalize() ItemData {
	d.Name = strings.TrimSpace(d.Name)
	if d.Singleton {
		d.Quantity = 1
	}
	return d
}

// Type is immutable catalog metadata for an item type.
type Type struct {
	ID            TypeID     `json:"id" yaml:"id"`
	Name          string     `json:"name" yaml:"name"`
	GroupID       GroupID    `json:"group_id" yaml:"group_id"`
	CategoryID    CategoryID `json:"category_id" yaml:"category_id"`
	Volume        float64    `json:"volume" yaml:"volume"`
	Capacity      float64    `json:"capacity" yaml:"capacity"`
	DroneCapacity float64    `json:"drone_capacity" yaml:"drone_capacity"`
}

// Row is the flat projection of an item sent to clients and exports.
type Row struct {
	ItemID     ItemID     `json:"item_id"`
	Name       string     `json:"name"`
	TypeID     TypeID     `json:"type_id"`
	OwnerID    OwnerID    `json:"owner_id"`
	LocationID ItemID     `json:"location_id"`
	Flag       Flag       `json:"flag"`
	Contraband bool       `json:"contraband"`
	Singleton  bool       `json:"singleton"`
	Quantity   uint32     `json:"quantity"`
	GroupID    GroupID    `json:"group_id"`
	CategoryID CategoryID `json:"category_id"`
	CustomInfo string     `json:"custom_info,omitempty"`
}

// AttributeID identifies an item attribute.
type AttributeID uint32

// Attributes maps attribute ids to values.
type Attributes map[AttributeID]float64

// Clone returns an independent copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Attribute ids read by the built-in variants.
const (
	AttrBlueprintCopy              AttributeID = 1001
	AttrBlueprintMaterialLevel     AttributeID = 1002
	AttrBlueprintProductivityLevel AttributeID = 1003
	AttrBlueprintRunsRemaining     AttributeID = 1004
	AttrSkillLevel                 AttributeID = 280
	AttrIsOnline                   AttributeID = 2
)
