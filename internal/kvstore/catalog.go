package kvstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Bucket layout. Store and index names are joined with NUL so that names
// containing '/' stay unambiguous.
var (
	metaBucket      = []byte("larder\x00meta")
	versionKey      = []byte("version")
	storeKeyPrefix  = []byte("store\x00")
	recordBucketTag = "s\x00"
	indexBucketTag  = "i\x00"
)

// RecordBucket returns the bucket name holding a store's records.
func RecordBucket(store string) []byte {
	return []byte(recordBucketTag + store)
}

// IndexBucket returns the bucket name holding one index of a store.
func IndexBucket(store, index string) []byte {
	return []byte(indexBucketTag + store + "\x00" + index)
}

// Catalog is the schema of an open database. It does not change while the
// database is open.
type Catalog struct {
	Version uint64
	Schemas map[string]types.StoreSchema
}

// StoreNames returns the store names in sorted order.
func (c *Catalog) StoreNames() []string {
	names := make([]string, 0, len(c.Schemas))
	for name := range c.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema returns the schema of a store.
func (c *Catalog) Schema(store string) (types.StoreSchema, bool) {
	s, ok := c.Schemas[store]
	return s, ok
}

// LoadCatalog reads the stored version and schemas. A database that has
// never been upgraded has version 0 and no stores.
func LoadCatalog(tx Tx) (*Catalog, error) {
	cat := &Catalog{Schemas: make(map[string]types.StoreSchema)}
	meta := tx.Bucket(metaBucket)
	if meta == nil {
		return cat, nil
	}
	if v := meta.Get(versionKey); v != nil {
		if len(v) != 8 {
			return nil, fmt.Errorf("%w: corrupt version record", types.ErrDataError)
		}
		cat.Version = binary.BigEndian.Uint64(v)
	}
	err := meta.Scan(storeKeyPrefix, func(k, v []byte) (bool, error) {
		var s types.StoreSchema
		if err := json.Unmarshal(v, &s); err != nil {
			return false, fmt.Errorf("decoding schema of store %q: %w", k[len(storeKeyPrefix):], err)
		}
		cat.Schemas[s.Name] = s.Normalize()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// Upgrade loads the catalog and, if version is newer than the stored one,
// runs upgrade and records the new version. The caller commits tx.
// Returns types.ErrVersion if version is older than the stored one.
func Upgrade(tx Tx, version uint64, upgrade types.UpgradeFunc) (*Catalog, error) {
	if version == 0 {
		return nil, types.ErrVersionInvalid
	}
	cat, err := LoadCatalog(tx)
	if err != nil {
		return nil, err
	}
	if version < cat.Version {
		return nil, fmt.Errorf("%w: requested %d, stored %d", types.ErrVersion, version, cat.Version)
	}
	if version == cat.Version {
		return cat, nil
	}

	meta := tx.Bucket(metaBucket)
	if meta == nil {
		if meta, err = tx.CreateBucket(metaBucket); err != nil {
			return nil, fmt.Errorf("creating meta bucket: %w", err)
		}
	}

	old := cat.Version
	if upgrade != nil {
		stx := &schemaTx{tx: tx, meta: meta, cat: cat}
		if err := upgrade(stx, old, version); err != nil {
			return nil, err
		}
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], version)
	if err := meta.Put(versionKey, buf[:]); err != nil {
		return nil, fmt.Errorf("writing version: %w", err)
	}
	cat.Version = version
	return cat, nil
}

// schemaTx implements types.SchemaTx over a writable Tx.
type schemaTx struct {
	tx   Tx
	meta Bucket
	cat  *Catalog
}

func (s *schemaTx) StoreNames() []string { return s.cat.StoreNames() }

func (s *schemaTx) HasStore(name string) bool {
	_, ok := s.cat.Schemas[name]
	return ok
}

func (s *schemaTx) CreateStore(schema types.StoreSchema) error {
	schema = schema.Normalize()
	if err := schema.Validate(); err != nil {
		return err
	}
	if s.HasStore(schema.Name) {
		return fmt.Errorf("%w: store %q already exists", types.ErrConstraint, schema.Name)
	}
	if _, err := s.tx.CreateBucket(RecordBucket(schema.Name)); err != nil {
		return fmt.Errorf("creating store %q: %w", schema.Name, err)
	}
	for _, idx := range schema.Indexes {
		if _, err := s.tx.CreateBucket(IndexBucket(schema.Name, idx.Key)); err != nil {
			return fmt.Errorf("creating index %q on %q: %w", idx.Key, schema.Name, err)
		}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	key := append(append([]byte(nil), storeKeyPrefix...), schema.Name...)
	if err := s.meta.Put(key, data); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}
	s.cat.Schemas[schema.Name] = schema
	return nil
}
