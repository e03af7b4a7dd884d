package value

import "reflect"

// Sanitize coerces a foreign Go value (as produced by encoding/json or
// json-iterator unmarshaling into interface{}, or hand-built
// map[string]interface{}/[]interface{} trees) into an immutable Value,
// dropping Absent members, rejecting non-string map keys, and rejecting
// anything outside the JSON primitive set.
func Sanitize(x interface{}) (*Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case *Value:
		if t == nil {
			return Null, nil
		}
		return t, nil
	case bool:
		return NewBool(t), nil
	case int:
		return NewInt(int64(t)), nil
	case int32:
		return NewInt(int64(t)), nil
	case int64:
		return NewInt(t), nil
	case float32:
		return NewFloat(float64(t)), nil
	case float64:
		return NewFloat(t), nil
	case string:
		return NewString(t), nil
	case []interface{}:
		items := make([]*Value, 0, len(t))
		for _, elem := range t {
			if elem == Absent {
				continue
			}
			sv, err := Sanitize(elem)
			if err != nil {
				return nil, err
			}
			if sv == Absent {
				continue
			}
			items = append(items, sv)
		}
		return NewList(items), nil
	case []*Value:
		items := make([]*Value, 0, len(t))
		for _, elem := range t {
			if elem == Absent {
				continue
			}
			items = append(items, elem)
		}
		return NewList(items), nil
	case map[string]interface{}:
		pairs := make(map[string]*Value, len(t))
		for k, raw := range t {
			if raw == Absent {
				continue
			}
			sv, err := Sanitize(raw)
			if err != nil {
				return nil, err
			}
			if sv == Absent {
				continue
			}
			pairs[k] = sv
		}
		return NewMap(pairs), nil
	case map[string]*Value:
		pairs := make(map[string]*Value, len(t))
		for k, v := range t {
			if v == Absent {
				continue
			}
			pairs[k] = v
		}
		return NewMap(pairs), nil
	default:
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Map && rv.Type().Key().Kind() != reflect.String {
			return nil, ErrKeyType
		}
		return nil, ErrNotJSON
	}
}

// IsImmutableJSON reports whether v (and, recursively, its children) is
// entirely built from the JSON primitive set reachable via Sanitize. Every
// Value constructed through this package's API satisfies this by
// construction; the check exists for validating values that arrived via
// unsafe construction paths (tests, fuzzers).
func IsImmutableJSON(v *Value) bool {
	if v == nil || v == Absent {
		return false
	}
	switch v.kind {
	case KindList:
		for _, c := range v.list {
			if !IsImmutableJSON(c) {
				return false
			}
		}
	case KindMap:
		for _, c := range v.vals {
			if !IsImmutableJSON(c) {
				return false
			}
		}
	}
	return true
}
