package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestStoreSchemaNormalize(t *testing.T) {
	off := false
	tests := []struct {
		name string
		in   StoreSchema
		want StoreSchema
	}{
		{
			name: "defaults",
			in:   StoreSchema{Name: "a"},
			want: StoreSchema{Name: "a", KeyPath: "id", AutoIncrement: boolPtr(true), KeyGenerator: KeyGeneratorSequence},
		},
		{
			name: "explicit values kept",
			in:   StoreSchema{Name: "a", KeyPath: "code", AutoIncrement: &off, KeyGenerator: KeyGeneratorUUID},
			want: StoreSchema{Name: "a", KeyPath: "code", AutoIncrement: &off, KeyGenerator: KeyGeneratorUUID},
		},
		{
			name: "keyless indexes dropped",
			in:   StoreSchema{Name: "a", Indexes: []IndexSpec{{Key: ""}, {Key: "x", Unique: true}}},
			want: StoreSchema{Name: "a", KeyPath: "id", AutoIncrement: boolPtr(true), KeyGenerator: KeyGeneratorSequence,
				Indexes: []IndexSpec{{Key: "x", Unique: true}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.in.Normalize()); diff != "" {
				t.Errorf("Normalize mismatch (-want +got):\n%s", diff)
			}
		})
	}

	assert.True(t, StoreSchema{}.AutoIncrements())
	assert.False(t, StoreSchema{AutoIncrement: &off}.AutoIncrements())
}

func boolPtr(b bool) *bool { return &b }

func TestStoreSchemaJSON(t *testing.T) {
	data := `{"name":"notes","keyPath":"nid","autoIncrement":false,
		"indexs":["title",{"key":"slug","unique":true},{"unique":true}],
		"indexes":["owner"]}`

	var s StoreSchema
	require.NoError(t, json.Unmarshal([]byte(data), &s))

	assert.Equal(t, "notes", s.Name)
	assert.Equal(t, "nid", s.KeyPath)
	assert.False(t, s.AutoIncrements())
	want := []IndexSpec{{Key: "owner"}, {Key: "title"}, {Key: "slug", Unique: true}, {Key: "", Unique: true}}
	assert.Equal(t, want, s.Indexes)

	var bad IndexSpec
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestStoreSchemaYAML(t *testing.T) {
	data := `
name: notes
indexes:
  - title
  - key: slug
    unique: true
`
	var s StoreSchema
	require.NoError(t, yaml.Unmarshal([]byte(data), &s))
	assert.Equal(t, []IndexSpec{{Key: "title"}, {Key: "slug", Unique: true}}, s.Indexes)
	assert.Nil(t, s.AutoIncrement)
}

func TestParseSchema(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Config
	}{
		{
			name: "yaml list",
			data: `
name: notes
version: 2
stores:
  - name: note
    indexes: [title]
  - name: tag
    keyPath: name
    autoIncrement: false
`,
			want: Config{Name: "notes", Version: 2, Stores: []StoreSchema{
				{Name: "note", Indexes: []IndexSpec{{Key: "title"}}},
				{Name: "tag", KeyPath: "name", AutoIncrement: boolPtr(false)},
			}},
		},
		{
			name: "json storeList with single store",
			data: `{"name":"notes","version":1,"storeList":{"name":"note","indexs":["title"]}}`,
			want: Config{Name: "notes", Version: 1, Stores: []StoreSchema{
				{Name: "note", Indexes: []IndexSpec{{Key: "title"}}},
			}},
		},
		{
			name: "no stores",
			data: `name: empty`,
			want: Config{Name: "empty"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchema([]byte(tt.data), ".yaml")
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseSchema mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := ParseSchema([]byte(`stores: 3`), ".yaml")
	assert.ErrorContains(t, err, "list or a mapping")
	_, err = ParseSchema([]byte(`name: [`), ".yaml")
	assert.Error(t, err)
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"x","stores":[{"name":"a"}]}`), 0o600))

	cfg, err := LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.Name)
	assert.Equal(t, "a", cfg.DefaultStore())

	_, err = LoadSchemaFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCloneRecord(t *testing.T) {
	orig := Record{"a": 1, "nested": map[string]any{"b": 2}}
	c := CloneRecord(orig)
	c["a"] = 9
	c["nested"].(map[string]any)["b"] = 9

	assert.Equal(t, 1, orig["a"])
	assert.Equal(t, 2, orig["nested"].(map[string]any)["b"])
	assert.Nil(t, CloneRecord(nil))
	assert.Equal(t, "readonly", ReadOnly.String())
	assert.Equal(t, "readwrite", ReadWrite.String())
}
