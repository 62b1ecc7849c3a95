package domain

import "encoding/json"

// Field names a changed item column inside a ChangeRecord.
type Field string

// Fields reported in item change notifications.
const (
	FieldLocationID Field = "locationID"
	FieldFlag       Field = "flag"
	FieldOwnerID    Field = "ownerID"
	FieldQuantity   Field = "quantity"
	FieldSingleton  Field = "singleton"
)

// ChangeRecord describes one item mutation: the current row plus the previous
// value of every field that changed.
type ChangeRecord struct {
	Row     Row           `json:"row"`
	Changes map[Field]any `json:"changes"`
}

// NewChangeRecord builds a record with an empty delta.
func NewChangeRecord(row Row) ChangeRecord {
	return ChangeRecord{Row: row, Changes: make(map[Field]any, 2)}
}

// With records the previous value of field and returns the record for chaining.
func (c ChangeRecord) With(field Field, old any) ChangeRecord {
	if c.Changes == nil {
		c.Changes = make(map[Field]any, 2)
	}
	c.Changes[field] = old
	return c
}

// Clone deep-copies the delta so one record can be sent to several owners.
func (c ChangeRecord) Clone() ChangeRecord {
	out := ChangeRecord{Row: c.Row, Changes: make(map[Field]any, len(c.Changes))}
	for k, v := range c.Changes {
		out.Changes[k] = v
	}
	return out
}

// MarshalJSON renders the record as the OnItemChange event envelope.
func (c ChangeRecord) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Event   string        `json:"event"`
		Row     Row           `json:"row"`
		Changes map[Field]any `json:"changes"`
	}
	return json.Marshal(envelope{Event: "OnItemChange", Row: c.Row, Changes: c.Changes})
}
