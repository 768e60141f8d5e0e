package keys

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/pkg/types"
)

type memSequence struct {
	v   uint64
	err error
}

func (s *memSequence) Sequence() (uint64, error) { return s.v, s.err }
func (s *memSequence) SetSequence(v uint64) error {
	if s.err != nil {
		return s.err
	}
	s.v = v
	return nil
}

func TestBumpSequence(t *testing.T) {
	tests := []struct {
		name    string
		current uint64
		key     any
		want    uint64
	}{
		{"string key", 5, "x", 5},
		{"lower key", 5, float64(2), 5},
		{"equal key", 5, float64(5), 5},
		{"higher key", 5, float64(9), 9},
		{"fractional key", 5, 9.9, 9},
		{"negative key", 0, float64(-3), 0},
		{"huge key", 5, 1e300, maxSequence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BumpSequence(tt.current, tt.key))
		})
	}
	assert.True(t, SequenceExhausted(maxSequence))
	assert.False(t, SequenceExhausted(maxSequence-1))
}

func TestResolveGenerates(t *testing.T) {
	schema := types.StoreSchema{Name: "s"}.Normalize()
	seq := &memSequence{}

	r := types.Record{"v": 1}
	key, err := Resolve(r, schema, seq)
	require.NoError(t, err)
	assert.Equal(t, float64(1), key)
	assert.Equal(t, float64(1), r["id"])

	key, err = Resolve(types.Record{"id": nil}, schema, seq)
	require.NoError(t, err)
	assert.Equal(t, float64(2), key)
	assert.Equal(t, uint64(2), seq.v)
}

func TestResolveExplicitKeys(t *testing.T) {
	schema := types.StoreSchema{Name: "s"}.Normalize()
	seq := &memSequence{v: 3}

	key, err := Resolve(types.Record{"id": 10}, schema, seq)
	require.NoError(t, err)
	assert.Equal(t, float64(10), key)
	assert.Equal(t, uint64(10), seq.v)

	key, err = Resolve(types.Record{"id": "name"}, schema, seq)
	require.NoError(t, err)
	assert.Equal(t, "name", key)
	assert.Equal(t, uint64(10), seq.v)

	_, err = Resolve(types.Record{"id": true}, schema, seq)
	assert.ErrorIs(t, err, types.ErrDataError)
}

func TestResolveManual(t *testing.T) {
	off := false
	schema := types.StoreSchema{Name: "s", KeyPath: "code", AutoIncrement: &off}.Normalize()
	seq := &memSequence{}

	_, err := Resolve(types.Record{"v": 1}, schema, seq)
	assert.ErrorIs(t, err, types.ErrDataError)

	key, err := Resolve(types.Record{"code": 50}, schema, seq)
	require.NoError(t, err)
	assert.Equal(t, float64(50), key)
	assert.Zero(t, seq.v, "manual stores never touch the generator")
}

func TestResolveUUID(t *testing.T) {
	schema := types.StoreSchema{Name: "s", KeyPath: "a.b", KeyGenerator: types.KeyGeneratorUUID}.Normalize()
	seq := &memSequence{}

	r := types.Record{}
	key, err := Resolve(r, schema, seq)
	require.NoError(t, err)

	id, err := uuid.Parse(key.(string))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, map[string]any{"b": key}, r["a"])
	assert.Zero(t, seq.v)
}

func TestResolveExhausted(t *testing.T) {
	schema := types.StoreSchema{Name: "s"}.Normalize()
	_, err := Resolve(types.Record{}, schema, &memSequence{v: maxSequence})
	assert.ErrorIs(t, err, types.ErrConstraint)
}

func TestResolveSequenceError(t *testing.T) {
	boom := errors.New("boom")
	schema := types.StoreSchema{Name: "s"}.Normalize()
	_, err := Resolve(types.Record{}, schema, &memSequence{err: boom})
	assert.ErrorIs(t, err, boom)
}
