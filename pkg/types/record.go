package types

// Record is a plain JSON-shaped document stored in an object store.
type Record = map[string]any

// Key identifies a record within a store. Valid keys are numbers and
// strings; engines receive keys already normalized to float64 or string.
type Key = any

// Mode selects the kind of transaction an operation runs in.
type Mode int

// Transaction modes.
const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadOnly {
		return "readonly"
	}
	return "readwrite"
}

// Space is a storage usage estimate in kilobytes.
type Space struct {
	QuotaKB     float64 `json:"quota"`
	UsageKB     float64 `json:"usage"`
	RemainingKB float64 `json:"remaining"`
	Unit        string  `json:"unit"`
}

// CloneRecord returns a shallow copy of r, copying nested maps so that key
// injection never mutates the caller's record.
func CloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if m, ok := v.(map[string]any); ok {
			out[k] = CloneRecord(m)
			continue
		}
		out[k] = v
	}
	return out
}
