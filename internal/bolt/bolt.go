// Package bolt implements the "bolt" storage engine on go.etcd.io/bbolt.
// Each database is one file; stores and indexes are buckets, and bucket
// sequences drive key generation.
package bolt

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/mesh-intelligence/larder/internal/kvstore"
)

var _ kvstore.Tx = (*boltTx)(nil)

type boltTx struct {
	tx *bolt.Tx
}

func (t *boltTx) Bucket(name []byte) kvstore.Bucket {
	b := t.tx.Bucket(name)
	if b == nil {
		return nil
	}
	return &boltBucket{bucket: b}
}

func (t *boltTx) CreateBucket(name []byte) (kvstore.Bucket, error) {
	b, err := t.tx.CreateBucket(name)
	if err != nil {
		return nil, fmt.Errorf("could not create bucket: %w", err)
	}
	return &boltBucket{bucket: b}, nil
}

func (t *boltTx) Writable() bool {
	return t.tx.Writable()
}

func (t *boltTx) Commit() error {
	return t.tx.Commit()
}

func (t *boltTx) Rollback() error {
	return t.tx.Rollback()
}

var _ kvstore.Bucket = (*boltBucket)(nil)

type boltBucket struct {
	bucket *bolt.Bucket
}

func (b *boltBucket) Get(key []byte) []byte {
	return b.bucket.Get(key)
}

func (b *boltBucket) Put(key, value []byte) error {
	return b.bucket.Put(key, value)
}

func (b *boltBucket) Delete(key []byte) error {
	return b.bucket.Delete(key)
}

func (b *boltBucket) Scan(prefix []byte, fn func(k, v []byte) (bool, error)) error {
	c := b.bucket.Cursor()
	var k, v []byte
	if len(prefix) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(prefix)
	}
	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		more, err := fn(k, v)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (b *boltBucket) Sequence() uint64 {
	return b.bucket.Sequence()
}

func (b *boltBucket) SetSequence(v uint64) error {
	return b.bucket.SetSequence(v)
}
