package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultKeyPath is the key path of a store that does not declare one.
const DefaultKeyPath = "id"

// Key generators for auto-increment stores.
const (
	KeyGeneratorSequence = "sequence"
	KeyGeneratorUUID     = "uuid"
)

// StoreSchema declares one object store.
type StoreSchema struct {
	Name    string `json:"name" yaml:"name"`
	KeyPath string `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	// AutoIncrement is a pointer so that an unset flag defaults to true.
	AutoIncrement *bool       `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	KeyGenerator  string      `json:"keyGenerator,omitempty" yaml:"keyGenerator,omitempty"`
	Indexes       []IndexSpec `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// Normalize fills in the key path, auto-increment flag, and key generator
// defaults. Index entries without a key are dropped.
func (s StoreSchema) Normalize() StoreSchema {
	out := s
	if out.KeyPath == "" {
		out.KeyPath = DefaultKeyPath
	}
	if out.AutoIncrement == nil {
		t := true
		out.AutoIncrement = &t
	}
	if out.KeyGenerator == "" {
		out.KeyGenerator = KeyGeneratorSequence
	}
	out.Indexes = nil
	for _, idx := range s.Indexes {
		if idx.Key == "" {
			continue
		}
		out.Indexes = append(out.Indexes, idx)
	}
	return out
}

// AutoIncrements reports whether the store generates keys for records that
// do not carry one. Unset means true.
func (s StoreSchema) AutoIncrements() bool {
	return s.AutoIncrement == nil || *s.AutoIncrement
}

// Index returns the index with the given name.
func (s StoreSchema) Index(name string) (IndexSpec, bool) {
	for _, idx := range s.Indexes {
		if idx.Key == name {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// Validate checks the store name, key generator, and index uniqueness.
func (s StoreSchema) Validate() error {
	if s.Name == "" {
		return ErrStoreNameEmpty
	}
	switch s.KeyGenerator {
	case "", KeyGeneratorSequence, KeyGeneratorUUID:
	default:
		return fmt.Errorf("store %q: unknown key generator %q", s.Name, s.KeyGenerator)
	}
	seen := make(map[string]bool, len(s.Indexes))
	for _, idx := range s.Indexes {
		if idx.Key == "" {
			continue
		}
		if seen[idx.Key] {
			return fmt.Errorf("store %q: index %q declared more than once", s.Name, idx.Key)
		}
		seen[idx.Key] = true
	}
	return nil
}

// storeSchemaAlias lets the unmarshalers accept the legacy "indexs" field
// without recursing into themselves.
type storeSchemaAlias struct {
	Name          string      `json:"name" yaml:"name"`
	KeyPath       string      `json:"keyPath" yaml:"keyPath"`
	AutoIncrement *bool       `json:"autoIncrement" yaml:"autoIncrement"`
	KeyGenerator  string      `json:"keyGenerator" yaml:"keyGenerator"`
	Indexes       []IndexSpec `json:"indexes" yaml:"indexes"`
	Indexs        []IndexSpec `json:"indexs" yaml:"indexs"`
}

func (a storeSchemaAlias) schema() StoreSchema {
	return StoreSchema{
		Name:          a.Name,
		KeyPath:       a.KeyPath,
		AutoIncrement: a.AutoIncrement,
		KeyGenerator:  a.KeyGenerator,
		Indexes:       append(a.Indexes, a.Indexs...),
	}
}

// UnmarshalJSON accepts both "indexes" and "indexs".
func (s *StoreSchema) UnmarshalJSON(data []byte) error {
	var a storeSchemaAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = a.schema()
	return nil
}

// UnmarshalYAML accepts both "indexes" and "indexs".
func (s *StoreSchema) UnmarshalYAML(node *yaml.Node) error {
	var a storeSchemaAlias
	if err := node.Decode(&a); err != nil {
		return err
	}
	*s = a.schema()
	return nil
}

// IndexSpec declares a secondary index. The index name and the key path it
// covers are the same string.
type IndexSpec struct {
	Key    string `json:"key" yaml:"key"`
	Unique bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
}

type indexSpecAlias IndexSpec

// UnmarshalJSON accepts either a bare field name or {key, unique}.
func (i *IndexSpec) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*i = IndexSpec{Key: name}
		return nil
	}
	var a indexSpecAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("index must be a string or {key, unique}: %w", err)
	}
	*i = IndexSpec(a)
	return nil
}

// UnmarshalYAML accepts either a bare field name or {key, unique}.
func (i *IndexSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*i = IndexSpec{Key: node.Value}
		return nil
	}
	var a indexSpecAlias
	if err := node.Decode(&a); err != nil {
		return fmt.Errorf("index must be a string or {key, unique}: %w", err)
	}
	*i = IndexSpec(a)
	return nil
}

// schemaFile is the on-disk database definition. Stores may be a list or a
// single mapping.
type schemaFile struct {
	Name    string    `yaml:"name"`
	Version uint64    `yaml:"version"`
	Stores  yaml.Node `yaml:"stores"`
	// storeList is the original field name, kept for definitions exported
	// from browser code.
	StoreList yaml.Node `yaml:"storeList"`
}

// LoadSchemaFile reads a database definition (name, version, stores) from a
// YAML or JSON file. A single store mapping is promoted to a one-element
// list. The returned Config has no backend or data directory set.
func LoadSchemaFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading schema file: %w", err)
	}
	return ParseSchema(data, strings.ToLower(filepath.Ext(path)))
}

// ParseSchema parses a database definition. YAML is a superset of JSON so
// one decoder handles both; ext is only used in error messages.
func ParseSchema(data []byte, ext string) (Config, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("parsing schema%s: %w", ext, err)
	}
	node := &f.Stores
	if node.Kind == 0 {
		node = &f.StoreList
	}

	var stores []StoreSchema
	switch node.Kind {
	case 0:
	case yaml.MappingNode:
		var s StoreSchema
		if err := node.Decode(&s); err != nil {
			return Config{}, fmt.Errorf("parsing store: %w", err)
		}
		stores = []StoreSchema{s}
	case yaml.SequenceNode:
		if err := node.Decode(&stores); err != nil {
			return Config{}, fmt.Errorf("parsing stores: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("parsing schema%s: stores must be a list or a mapping", ext)
	}

	return Config{Name: f.Name, Version: f.Version, Stores: stores}, nil
}
