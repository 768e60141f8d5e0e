package keys

import (
	"encoding/binary"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// IndexPrefix returns the prefix shared by every index entry for value:
// uvarint(len(encoded value)) followed by the encoded value.
func IndexPrefix(value any) ([]byte, error) {
	ev, err := Encode(value)
	if err != nil {
		return nil, err
	}
	out := binary.AppendUvarint(make([]byte, 0, len(ev)+binary.MaxVarintLen64), uint64(len(ev)))
	return append(out, ev...), nil
}

// IndexEntry returns the index entry key for an indexed value and the
// encoded primary key of its record. Entries for one value share a prefix
// and sort among themselves by primary key; across values they sort by
// encoded length first, so only equality lookups are meaningful.
func IndexEntry(value any, primary []byte) ([]byte, error) {
	prefix, err := IndexPrefix(value)
	if err != nil {
		return nil, err
	}
	return append(prefix, primary...), nil
}

// IndexValue returns the indexable value of rec under an index key path.
// ok is false when the record should not appear in the index.
func IndexValue(rec types.Record, path string) (types.Key, bool) {
	v, found := Extract(rec, path)
	if !found {
		return nil, false
	}
	k, err := Normalize(v)
	if err != nil {
		return nil, false
	}
	return k, true
}
