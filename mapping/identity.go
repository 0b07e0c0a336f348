// Package mapping supplies the default reflection-driven EntityMapping,
// identity generators, and the mapping registry consumed by package
// session.
package mapping

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forbearing/docsession/session"
)

// UUIDGenerator produces google/uuid v4 identities, stored and compared as
// strings.
type UUIDGenerator struct{}

var _ session.IdentityGenerator = UUIDGenerator{}

func (UUIDGenerator) Generate() any { return uuid.NewString() }

func (UUIDGenerator) FromString(s string) (any, error) {
	if _, err := uuid.Parse(s); err != nil {
		return nil, fmt.Errorf("mapping: invalid uuid identity %q: %w", s, err)
	}
	return s, nil
}

func (UUIDGenerator) IsIdentifier(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// XIDGenerator produces rs/xid identities: shorter and sortable by
// creation time, useful where log/index locality matters more than
// uuid's randomness.
type XIDGenerator struct{}

var _ session.IdentityGenerator = XIDGenerator{}

func (XIDGenerator) Generate() any { return xid.New().String() }

func (XIDGenerator) FromString(s string) (any, error) {
	id, err := xid.FromString(s)
	if err != nil {
		return nil, fmt.Errorf("mapping: invalid xid identity %q: %w", s, err)
	}
	return id.String(), nil
}

func (XIDGenerator) IsIdentifier(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, err := xid.FromString(s)
	return err == nil
}

// ObjectIDGenerator produces MongoDB-native bson.ObjectID identities, for
// mappings whose entities carry a bson.ObjectID identity field.
type ObjectIDGenerator struct{}

var _ session.IdentityGenerator = ObjectIDGenerator{}

func (ObjectIDGenerator) Generate() any { return bson.NewObjectID() }

func (ObjectIDGenerator) FromString(s string) (any, error) {
	id, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return nil, fmt.Errorf("mapping: invalid object id %q: %w", s, err)
	}
	return id, nil
}

func (ObjectIDGenerator) IsIdentifier(v any) bool {
	switch t := v.(type) {
	case bson.ObjectID:
		return true
	case string:
		_, err := bson.ObjectIDFromHex(t)
		return err == nil
	default:
		return false
	}
}
