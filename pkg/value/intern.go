package value

import (
	"runtime"
	"sync"
)

// internTable hash-conses Values by content hash + structural equality so
// that pointer equality becomes a valid fast path for "same value". Entries
// are removed when the canonical Value is garbage collected, via
// runtime.SetFinalizer — Go has no built-in weak map prior to the `weak`
// package (1.24+), and the teacher's target (go 1.21) predates it, so a
// finalizer-driven bucket is the idiomatic stand-in.
type internTable struct {
	mu      sync.Mutex
	buckets map[uint64][]*Value
}

var table = &internTable{buckets: make(map[uint64][]*Value)}

func intern(v *Value) *Value {
	h := contentHash(v)
	v.hash = h

	table.mu.Lock()
	defer table.mu.Unlock()

	bucket := table.buckets[h]
	for _, existing := range bucket {
		if deepEqual(existing, v) {
			return existing
		}
	}

	bucket = append(bucket, v)
	table.buckets[h] = bucket
	runtime.SetFinalizer(v, evict)
	return v
}

func evict(v *Value) {
	table.mu.Lock()
	defer table.mu.Unlock()
	bucket := table.buckets[v.hash]
	for i, existing := range bucket {
		if existing == v {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(table.buckets, v.hash)
	} else {
		table.buckets[v.hash] = bucket
	}
}

// Equal reports deep structural equality between a and b. Because Values
// are hash-consed, a == b is always equivalent to Equal(a, b) for any two
// Values that have gone through intern — Equal exists for comparing a
// freshly-constructed, not-yet-interned Value, and as a sanity check.
func Equal(a, b *Value) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return deepEqual(a, b)
}

func deepEqual(a, b *Value) bool {
	if a == b {
		return true
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindAbsent, KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindFloat:
		return a.f == b.f
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !deepEqual(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.keys) != len(b.keys) {
			return false
		}
		for i := range a.keys {
			if a.keys[i] != b.keys[i] || !deepEqual(a.vals[i], b.vals[i]) {
				return false
			}
		}
		return true
	}
	return false
}
