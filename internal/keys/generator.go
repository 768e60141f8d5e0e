package keys

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// NewUUID generates a UUID v7 string for stores using the uuid key
// generator.
func NewUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return uuid.New().String()
	}
	return id.String()
}

// maxSequence is the largest integer a float64 key holds exactly.
const maxSequence = 1 << 53

// BumpSequence returns the generator value after a record with an explicit
// key was written: numeric keys at or above the current value advance it to
// floor(key). String keys leave it unchanged.
func BumpSequence(current uint64, key any) uint64 {
	f, ok := key.(float64)
	if !ok || f < float64(current) {
		return current
	}
	if f >= maxSequence {
		return maxSequence
	}
	return uint64(math.Floor(f))
}

// SequenceExhausted reports whether the generator has no keys left.
func SequenceExhausted(current uint64) bool {
	return current >= maxSequence
}

// Sequence is the per-store key generator state an engine persists.
type Sequence interface {
	Sequence() (uint64, error)
	SetSequence(v uint64) error
}

// Resolve returns the key of r under schema. When the record has no key
// and the store auto-increments, a key is generated and injected into r.
// Explicit numeric keys advance the sequence generator.
func Resolve(r types.Record, schema types.StoreSchema, seq Sequence) (types.Key, error) {
	raw, found := Extract(r, schema.KeyPath)
	if !found || raw == nil {
		if !schema.AutoIncrements() {
			return nil, fmt.Errorf("%w: record has no key at %q", types.ErrDataError, schema.KeyPath)
		}
		key, err := generate(schema, seq)
		if err != nil {
			return nil, err
		}
		if err := Inject(r, schema.KeyPath, key); err != nil {
			return nil, err
		}
		return key, nil
	}

	key, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	if schema.AutoIncrements() && schema.KeyGenerator == types.KeyGeneratorSequence {
		cur, err := seq.Sequence()
		if err != nil {
			return nil, err
		}
		if next := BumpSequence(cur, key); next != cur {
			if err := seq.SetSequence(next); err != nil {
				return nil, err
			}
		}
	}
	return key, nil
}

func generate(schema types.StoreSchema, seq Sequence) (types.Key, error) {
	if schema.KeyGenerator == types.KeyGeneratorUUID {
		return NewUUID(), nil
	}
	cur, err := seq.Sequence()
	if err != nil {
		return nil, err
	}
	if SequenceExhausted(cur) {
		return nil, fmt.Errorf("%w: key generator exhausted for %q", types.ErrConstraint, schema.Name)
	}
	if err := seq.SetSequence(cur + 1); err != nil {
		return nil, err
	}
	return float64(cur + 1), nil
}
