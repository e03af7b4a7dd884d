// Package value implements the engine's immutable JSON-shaped value:
// structurally shared, content-hashed, with a per-instance metadata slot
// used by pkg/attached to memoize derived analyses.
//
// Two Values with equal content share one instance (hash-consing), so
// pointer equality is always a valid "unchanged" fast path.
package value

import (
	"math"
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/pkg/errors"
)

// Kind identifies the underlying JSON shape of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	kindAbsent
)

// ErrNotJSON is returned by Sanitize when given something outside the JSON
// primitive set (null, bool, int64, float64, string, list, map[string]).
var ErrNotJSON = errors.New("value: not representable as JSON")

// ErrKeyType is returned by Sanitize when a mapping key is not a string.
var ErrKeyType = errors.New("value: mapping keys must be strings")

// Value is an immutable, content-addressed JSON node.
type Value struct {
	kind Kind

	b bool
	i int64
	f float64
	s string

	list []*Value          // KindList, never mutated after construction
	keys []string          // KindMap, sorted ascending
	vals []*Value          // KindMap, parallel to keys

	hash uint64

	metaOnce sync.Once
	meta     *metadata
}

// Absent is the sentinel for "no such value at this location". It is
// distinct from Null and is never stored inside a container.
var Absent = &Value{kind: kindAbsent}

// Null, True and False are the canonical singletons for their kinds.
var (
	Null  = intern(&Value{kind: KindNull})
	True  = intern(&Value{kind: KindBool, b: true})
	False = intern(&Value{kind: KindBool, b: false})
)

// Kind reports the value's JSON shape.
func (v *Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v is the Absent sentinel.
func (v *Value) IsAbsent() bool { return v == Absent }

// Bool returns the boolean payload; only meaningful when Kind() == KindBool.
func (v *Value) Bool() bool { return v.b }

// Int returns the integer payload; only meaningful when Kind() == KindInt.
func (v *Value) Int() int64 { return v.i }

// Float returns the float payload; only meaningful when Kind() == KindFloat.
func (v *Value) Float() float64 { return v.f }

// Str returns the string payload; only meaningful when Kind() == KindString.
func (v *Value) Str() string { return v.s }

// Len returns the number of elements for KindList/KindMap, 0 otherwise.
func (v *Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.keys)
	default:
		return 0
	}
}

// Index returns the i-th list element, or Absent if out of range or v is
// not a list.
func (v *Value) Index(i int) *Value {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Absent
	}
	return v.list[i]
}

// Field returns the mapping value at key, or Absent if missing or v is not
// a map.
func (v *Value) Field(key string) *Value {
	if v.kind != KindMap {
		return Absent
	}
	idx := v.findKey(key)
	if idx < 0 {
		return Absent
	}
	return v.vals[idx]
}

// Keys returns the sorted key list of a KindMap value (empty otherwise).
// The returned slice must not be mutated.
func (v *Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	return v.keys
}

// Items returns the index-order elements of a KindList value (empty
// otherwise). The returned slice must not be mutated.
func (v *Value) Items() []*Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

func (v *Value) findKey(key string) int {
	lo, hi := 0, len(v.keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if v.keys[mid] < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(v.keys) && v.keys[lo] == key {
		return lo
	}
	return -1
}

// metadata is the side table attached one-per-Value, used by pkg/attached
// to memoize pure derived analyses keyed by analysis name.
type metadata struct {
	mu    sync.Mutex
	cache map[string]interface{}
}

// Meta returns v's metadata slot, allocating it lazily. Concurrent callers
// share the same slot; Get/Set on it are internally synchronized.
func (v *Value) Meta() *Metadata {
	v.metaOnce.Do(func() {
		v.meta = &metadata{cache: make(map[string]interface{})}
	})
	return (*Metadata)(v.meta)
}

// Metadata is the public handle to a Value's derived-analysis cache.
type Metadata metadata

// Get returns the cached result for key and whether it was present.
func (m *Metadata) Get(key string) (interface{}, bool) {
	mm := (*metadata)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	v, ok := mm.cache[key]
	return v, ok
}

// Set stores result under key.
func (m *Metadata) Set(key string, result interface{}) {
	mm := (*metadata)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.cache[key] = result
}

// NewBool returns the canonical Value for b.
func NewBool(b bool) *Value {
	if b {
		return True
	}
	return False
}

// NewInt returns the hash-consed int Value for i.
func NewInt(i int64) *Value { return intern(&Value{kind: KindInt, i: i}) }

// NewFloat returns a new float Value.
func NewFloat(f float64) *Value { return intern(&Value{kind: KindFloat, f: f}) }

// NewString returns a new string Value.
func NewString(s string) *Value { return intern(&Value{kind: KindString, s: s}) }

// NewList builds a Value from a slice of child Values. Absent must not
// appear; callers needing to filter Absent should use Sanitize.
func NewList(items []*Value) *Value {
	cp := make([]*Value, len(items))
	copy(cp, items)
	return intern(&Value{kind: KindList, list: cp})
}

// NewMap builds a Value from key/child pairs. Duplicate keys keep the
// last occurrence; Absent values must not appear.
func NewMap(pairs map[string]*Value) *Value {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sortStrings(keys)
	vals := make([]*Value, len(keys))
	for i, k := range keys {
		vals[i] = pairs[k]
	}
	return intern(&Value{kind: KindMap, keys: keys, vals: vals})
}

func sortStrings(s []string) {
	// insertion sort is fine: mapping sizes in a config tree are small and
	// this keeps the package free of a sort import footgun around stability
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// contentHash computes a structural hash used only for hash-consing
// bucketing; it is not part of the public API.
func contentHash(v *Value) uint64 {
	h := xxhash.New64()
	hashInto(h, v)
	return h.Sum64()
}

func hashInto(h *xxhash.XXHash64, v *Value) {
	switch v.kind {
	case kindAbsent:
		h.Write([]byte{0})
	case KindNull:
		h.Write([]byte{1})
	case KindBool:
		if v.b {
			h.Write([]byte{2, 1})
		} else {
			h.Write([]byte{2, 0})
		}
	case KindInt:
		h.Write([]byte{3})
		writeUint64(h, uint64(v.i))
	case KindFloat:
		h.Write([]byte{4})
		writeUint64(h, math.Float64bits(v.f))
	case KindString:
		h.Write([]byte{5})
		h.Write([]byte(v.s))
	case KindList:
		h.Write([]byte{6})
		for _, c := range v.list {
			hashInto(h, c)
		}
	case KindMap:
		h.Write([]byte{7})
		for i, k := range v.keys {
			h.Write([]byte(k))
			hashInto(h, v.vals[i])
		}
	}
}

func writeUint64(h *xxhash.XXHash64, u uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	h.Write(b[:])
}
