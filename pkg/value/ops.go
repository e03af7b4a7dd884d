package value

import (
	"github.com/reactree/reactree/pkg/path"
)

// Get returns the child of v named by a single path element, or Absent.
func Get(v *Value, elem path.Element) *Value {
	if elem.IsIndex() {
		return v.Index(elem.Index())
	}
	return v.Field(elem.Key())
}

// With returns a new Value with child substituted at elem. A string
// element materializes a KindMap out of Null/Absent; an integer element
// materializes a KindList. An integer index equal to the current length
// appends. Mismatched element/container kinds return a
// *PathElementTypeMismatchError.
func With(v *Value, elem path.Element, child *Value) (*Value, error) {
	if child == Absent {
		return Without(v, elem)
	}
	if elem.IsIndex() {
		return withIndex(v, elem.Index(), child)
	}
	return withKey(v, elem.Key(), child)
}

func withKey(v *Value, key string, child *Value) (*Value, error) {
	if v == nil || v == Absent || v.kind == KindNull {
		return NewMap(map[string]*Value{key: child}), nil
	}
	if v.kind != KindMap {
		return nil, errMismatch(v)
	}
	pairs := make(map[string]*Value, len(v.keys)+1)
	for i, k := range v.keys {
		pairs[k] = v.vals[i]
	}
	pairs[key] = child
	return NewMap(pairs), nil
}

func withIndex(v *Value, idx int, child *Value) (*Value, error) {
	if v == nil || v == Absent || v.kind == KindNull {
		if idx != 0 {
			return nil, errIndexRange(idx)
		}
		return NewList([]*Value{child}), nil
	}
	if v.kind != KindList {
		return nil, errMismatch(v)
	}
	if idx < 0 || idx > len(v.list) {
		return nil, errIndexRange(idx)
	}
	out := make([]*Value, len(v.list))
	copy(out, v.list)
	if idx == len(v.list) {
		out = append(out, child)
	} else {
		out[idx] = child
	}
	return NewList(out), nil
}

// Without returns a new Value with the element at elem removed. For lists,
// indices above the hole shift down. Removing from Absent/Null yields the
// empty map (matching setAtPath's "delete into Absent" rule).
func Without(v *Value, elem path.Element) (*Value, error) {
	if v == nil || v == Absent || v.kind == KindNull {
		return NewMap(nil), nil
	}
	if elem.IsIndex() {
		if v.kind != KindList {
			return nil, errMismatch(v)
		}
		idx := elem.Index()
		if idx < 0 || idx >= len(v.list) {
			return v, nil
		}
		out := make([]*Value, 0, len(v.list)-1)
		out = append(out, v.list[:idx]...)
		out = append(out, v.list[idx+1:]...)
		return NewList(out), nil
	}
	if v.kind != KindMap {
		return nil, errMismatch(v)
	}
	key := elem.Key()
	if v.findKey(key) < 0 {
		return v, nil
	}
	pairs := make(map[string]*Value, len(v.keys)-1)
	for i, k := range v.keys {
		if k != key {
			pairs[k] = v.vals[i]
		}
	}
	return NewMap(pairs), nil
}

// GetAtPath walks p element by element, returning Absent on any miss
// without raising.
func GetAtPath(v *Value, p path.Path) *Value {
	cur := v
	for _, elem := range p {
		if cur == nil || cur == Absent {
			return Absent
		}
		cur = Get(cur, elem)
	}
	if cur == nil {
		return Absent
	}
	return cur
}

// SetAtPath walks p, materializing intermediate containers at gaps, and
// substitutes newChild at the final segment. Setting Absent deletes.
func SetAtPath(v *Value, p path.Path, newChild *Value) (*Value, error) {
	if len(p) == 0 {
		if newChild == Absent {
			return NewMap(nil), nil
		}
		return newChild, nil
	}
	head, rest := p[0], p[1:]

	if len(rest) == 0 {
		return With(v, head, newChild)
	}

	child := Get(orAbsent(v), head)
	newSubChild, err := SetAtPath(child, rest, newChild)
	if err != nil {
		return nil, err
	}
	return With(v, head, newSubChild)
}

func orAbsent(v *Value) *Value {
	if v == nil {
		return Absent
	}
	return v
}

func errMismatch(v *Value) error {
	return &PathElementTypeMismatchError{Got: v.kind}
}

func errIndexRange(idx int) error {
	return &IndexRangeError{Index: idx}
}

// PathElementTypeMismatchError is raised when an integer path element is
// applied to a mapping, or a string element to a sequence.
type PathElementTypeMismatchError struct {
	Got Kind
}

func (e *PathElementTypeMismatchError) Error() string {
	return "path element type mismatch against container kind"
}

// IndexRangeError is raised when an integer element is negative or more
// than one past the end of a sequence.
type IndexRangeError struct {
	Index int
}

func (e *IndexRangeError) Error() string {
	return "path index out of range"
}
