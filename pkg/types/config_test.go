package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty name returns ErrNameEmpty",
			config:  Config{Stores: []StoreSchema{{Name: "a"}}},
			wantErr: ErrNameEmpty,
		},
		{
			name:    "parent path returns ErrNameInvalid",
			config:  Config{Name: "../escaped", Stores: []StoreSchema{{Name: "a"}}},
			wantErr: ErrNameInvalid,
		},
		{
			name:    "nested path returns ErrNameInvalid",
			config:  Config{Name: "a/b", Stores: []StoreSchema{{Name: "a"}}},
			wantErr: ErrNameInvalid,
		},
		{
			name:   "name with url characters is valid",
			config: Config{Name: "notes#a?x=1", Stores: []StoreSchema{{Name: "a"}}},
		},
		{
			name:    "no stores returns ErrNoStores",
			config:  Config{Name: "db"},
			wantErr: ErrNoStores,
		},
		{
			name:    "unnamed store returns ErrStoreNameEmpty",
			config:  Config{Name: "db", Stores: []StoreSchema{{KeyPath: "id"}}},
			wantErr: ErrStoreNameEmpty,
		},
		{
			name:    "duplicate store returns ErrDuplicateStore",
			config:  Config{Name: "db", Stores: []StoreSchema{{Name: "a"}, {Name: "a"}}},
			wantErr: ErrDuplicateStore,
		},
		{
			name:   "valid config",
			config: Config{Name: "db", Stores: []StoreSchema{{Name: "a"}, {Name: "b"}}},
		},
		{
			name:   "unknown backend is valid at config level",
			config: Config{Name: "db", Backend: "postgres", Stores: []StoreSchema{{Name: "a"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigValidateStoreErrors(t *testing.T) {
	cfg := Config{Name: "db", Stores: []StoreSchema{{Name: "a", KeyGenerator: "random"}}}
	assert.ErrorContains(t, cfg.Validate(), "unknown key generator")

	cfg = Config{Name: "db", Stores: []StoreSchema{{Name: "a", Indexes: []IndexSpec{{Key: "x"}, {Key: "x", Unique: true}}}}}
	assert.ErrorContains(t, cfg.Validate(), "declared more than once")
}

func TestConfigNormalize(t *testing.T) {
	in := Config{Name: "db", Stores: []StoreSchema{{Name: "a"}}}
	out := in.Normalize()

	assert.Equal(t, DefaultVersion, out.Version)
	assert.Equal(t, BackendSQLite, out.Backend)
	assert.Equal(t, DefaultKeyPath, out.Stores[0].KeyPath)
	assert.Empty(t, in.Stores[0].KeyPath, "Normalize must not modify the receiver")

	kept := Config{Name: "db", Version: 4, Backend: BackendBolt}.Normalize()
	assert.Equal(t, uint64(4), kept.Version)
	assert.Equal(t, BackendBolt, kept.Backend)
}

func TestConfigDefaultStore(t *testing.T) {
	assert.Empty(t, Config{}.DefaultStore())

	cfg := Config{Stores: []StoreSchema{{Name: "first"}, {Name: "second"}}}
	assert.Equal(t, "first", cfg.DefaultStore())
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"notes", "notes.v2", "notes#a", "what?x=1", "über"} {
		assert.NoError(t, ValidateName(name), name)
	}
	assert.ErrorIs(t, ValidateName(""), ErrNameEmpty)
	for _, name := range []string{".", "..", "../escaped", "a/b", `a\b`, "/abs"} {
		assert.ErrorIs(t, ValidateName(name), ErrNameInvalid, name)
	}
}
