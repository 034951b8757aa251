package store

import (
	"encoding/json"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ref is a document reference. It is written as an ObjectID, but older
// documents carry the 24-character hex form, so decoding accepts both and
// every filter over a reference field matches both.
type Ref primitive.ObjectID

func NewRef() Ref {
	return Ref(primitive.NewObjectID())
}

// ParseRef returns the zero Ref when value is not a valid hex ObjectID.
func ParseRef(value string) Ref {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(value))
	if err != nil {
		return Ref{}
	}
	return Ref(oid)
}

// RefFrom coerces loosely typed input (decoded JSON, BSON values) into a Ref.
func RefFrom(value any) Ref {
	switch v := value.(type) {
	case Ref:
		return v
	case *Ref:
		if v == nil {
			return Ref{}
		}
		return *v
	case primitive.ObjectID:
		return Ref(v)
	case string:
		return ParseRef(v)
	case map[string]any:
		// extended JSON {"$oid": "..."}
		if oid, ok := v["$oid"].(string); ok {
			return ParseRef(oid)
		}
	}
	return Ref{}
}

func (r Ref) IsZero() bool {
	return primitive.ObjectID(r).IsZero()
}

func (r Ref) Hex() string {
	if r.IsZero() {
		return ""
	}
	return primitive.ObjectID(r).Hex()
}

func (r Ref) String() string {
	return r.Hex()
}

func (r Ref) ObjectID() primitive.ObjectID {
	return primitive.ObjectID(r)
}

func (r Ref) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if r.IsZero() {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(primitive.ObjectID(r))
}

func (r *Ref) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeObjectID:
		*r = Ref(raw.ObjectID())
	case bson.TypeString:
		*r = ParseRef(raw.StringValue())
	default:
		*r = Ref{}
	}
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(r.Hex())
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*r = RefFrom(value)
	return nil
}

// RefValues lists both stored forms of r for use in $in filters.
func RefValues(r Ref) bson.A {
	return bson.A{primitive.ObjectID(r), r.Hex()}
}

// MatchRef builds a filter matching field against either stored form of r.
func MatchRef(field string, r Ref) bson.M {
	return bson.M{field: bson.M{"$in": RefValues(r)}}
}

// MatchAnyRef matches field against either stored form of any of refs.
func MatchAnyRef(field string, refs []Ref) bson.M {
	return bson.M{field: bson.M{"$in": refValuesAll(refs)}}
}

func refValuesAll(refs []Ref) bson.A {
	values := bson.A{}
	for _, r := range refs {
		if r.IsZero() {
			continue
		}
		values = append(values, RefValues(r)...)
	}
	return values
}

// ParseRefs parses every value and drops the ones that are not valid refs.
func ParseRefs(values []string) []Ref {
	out := make([]Ref, 0, len(values))
	for _, value := range values {
		if r := ParseRef(value); !r.IsZero() {
			out = append(out, r)
		}
	}
	return out
}

// UniqueRefs drops zero refs and duplicates, keeping the first occurrence.
func UniqueRefs(refs []Ref) []Ref {
	seen := make(map[Ref]struct{}, len(refs))
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if r.IsZero() {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func ContainsRef(refs []Ref, target Ref) bool {
	if target.IsZero() {
		return false
	}
	for _, r := range refs {
		if r == target {
			return true
		}
	}
	return false
}
