package value_test

import (
	"testing"

	"github.com/reactree/reactree/pkg/path"
	"github.com/reactree/reactree/pkg/value"
)

func mustSanitize(t *testing.T, x interface{}) *value.Value {
	t.Helper()
	v, err := value.Sanitize(x)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	return v
}

func TestHashConsIdentity(t *testing.T) {
	a := mustSanitize(t, map[string]interface{}{"a": map[string]interface{}{"b": []interface{}{1, 2, 3}}})
	b := mustSanitize(t, map[string]interface{}{"a": map[string]interface{}{"b": []interface{}{1, 2, 3}}})
	if a != b {
		t.Fatal("equal content did not hash-cons to the same pointer")
	}
}

func TestGetAtPathRoundTrip(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{"a": map[string]interface{}{"b": []interface{}{1, 2, 3}}})
	p := path.Parse("/a/b/[1]", nil)
	got := value.GetAtPath(v, p)
	if got.Kind() != value.KindInt || got.Int() != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestGetAtPathMiss(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{"a": 1})
	got := value.GetAtPath(v, path.Parse("/a/b/[9]", nil))
	if got != value.Absent {
		t.Fatalf("expected Absent, got %+v", got)
	}
}

func TestSetThenGet(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{})
	p := path.Parse("/a/b", nil)
	v2, err := value.SetAtPath(v, p, value.NewInt(42))
	if err != nil {
		t.Fatal(err)
	}
	got := value.GetAtPath(v2, p)
	if got.Int() != 42 {
		t.Fatalf("got %+v", got)
	}
}

func TestSetLastWriteWins(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{})
	p := path.Parse("/a/b", nil)
	v1, _ := value.SetAtPath(v, p, value.NewInt(1))
	v1, _ = value.SetAtPath(v1, p, value.NewInt(2))

	v2, _ := value.SetAtPath(v, p, value.NewInt(2))
	if v1 != v2 {
		t.Fatal("set(set(v,p,a),p,b) should equal set(v,p,b)")
	}
}

func TestSetAbsentDeletes(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{"a": map[string]interface{}{"b": 1}})
	p := path.Parse("/a/b", nil)
	v2, err := value.SetAtPath(v, p, value.Absent)
	if err != nil {
		t.Fatal(err)
	}
	if value.GetAtPath(v2, p) != value.Absent {
		t.Fatal("expected deletion")
	}
	if value.GetAtPath(v2, path.Parse("/a/b/c", nil)) != value.Absent {
		t.Fatal("descendant of deleted path must be Absent")
	}
}

func TestStructuralSharing(t *testing.T) {
	v1 := mustSanitize(t, map[string]interface{}{
		"a": map[string]interface{}{"keep": 1},
		"b": 2,
	})
	aBefore := value.GetAtPath(v1, path.Parse("/a", nil))

	v2, err := value.SetAtPath(v1, path.Parse("/b", nil), value.NewInt(3))
	if err != nil {
		t.Fatal(err)
	}
	aAfter := value.GetAtPath(v2, path.Parse("/a", nil))
	if aBefore != aAfter {
		t.Fatal("unrelated subtree should be pointer-identical after unrelated set")
	}
}

func TestListAppendAtLength(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{"xs": []interface{}{1, 2}})
	p := path.Parse("/xs/[2]", nil)
	v2, err := value.SetAtPath(v, p, value.NewInt(3))
	if err != nil {
		t.Fatal(err)
	}
	xs := value.GetAtPath(v2, path.Parse("/xs", nil))
	if xs.Len() != 3 || xs.Index(2).Int() != 3 {
		t.Fatalf("got %+v", xs)
	}
}

func TestMixedTypeMismatch(t *testing.T) {
	v := mustSanitize(t, map[string]interface{}{"a": []interface{}{1}})
	_, err := value.SetAtPath(v, path.Parse("/a/key", nil), value.NewInt(1))
	if err == nil {
		t.Fatal("expected PathElementTypeMismatchError")
	}
	if _, ok := err.(*value.PathElementTypeMismatchError); !ok {
		t.Fatalf("wrong error type: %T", err)
	}
}

func TestSanitizeRejectsNonJSON(t *testing.T) {
	_, err := value.Sanitize(make(chan int))
	if err != value.ErrNotJSON {
		t.Fatalf("expected ErrNotJSON, got %v", err)
	}
}

func TestSanitizeOmitsAbsentMembers(t *testing.T) {
	v, err := value.Sanitize(map[string]interface{}{"a": value.Absent, "b": 1})
	if err != nil {
		t.Fatal(err)
	}
	if v.Field("a") != value.Absent {
		t.Fatal("Absent member should be omitted, not stored")
	}
	if v.Field("b").Int() != 1 {
		t.Fatal("sibling should survive")
	}
}

func TestSanitizeRoundTrip(t *testing.T) {
	src := map[string]interface{}{"a": map[string]interface{}{"b": []interface{}{1, 2, 3}}}
	v := mustSanitize(t, src)
	p := path.Parse("/a/b/[1]", nil)
	got1 := value.GetAtPath(v, p)

	// sanitizing the same foreign source again should read back the same
	v2 := mustSanitize(t, src)
	got2 := value.GetAtPath(v2, p)
	if got1.Int() != got2.Int() {
		t.Fatalf("mismatch: %v vs %v", got1, got2)
	}
}
