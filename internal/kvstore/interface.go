// Package kvstore implements object-store semantics (stores, key paths,
// key generators, secondary indexes) on top of an ordered byte-bucket
// transaction. Engines that only provide sorted byte maps, such as bbolt
// and the in-memory engine, plug into it by implementing Tx and Bucket.
package kvstore

// Tx is a transaction over a set of named buckets. It must only be used by
// one goroutine at a time.
type Tx interface {
	// Bucket returns the named bucket or nil if it does not exist.
	Bucket(name []byte) Bucket
	// CreateBucket creates a bucket. It fails if the bucket exists.
	CreateBucket(name []byte) (Bucket, error)
	// Writable reports whether the transaction may modify buckets.
	Writable() bool
	Commit() error
	Rollback() error
}

// Bucket is a sorted key-value map with a sequence counter. Byte slices
// returned by Get and passed to Scan callbacks are only valid until the
// next modification.
type Bucket interface {
	// Get returns the value for key or nil if the key does not exist.
	Get(key []byte) []byte
	// Put sets a key. Keys must be non-empty.
	Put(key, value []byte) error
	// Delete removes a key. A missing key is not an error.
	Delete(key []byte) error
	// Scan calls fn for every key with the given prefix in ascending order
	// until fn returns false or an error.
	Scan(prefix []byte, fn func(k, v []byte) (bool, error)) error
	// Sequence returns the bucket's sequence counter.
	Sequence() uint64
	// SetSequence sets the bucket's sequence counter.
	SetSequence(v uint64) error
}
