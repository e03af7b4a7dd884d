package idgen_test

import (
	"testing"

	"github.com/reactree/reactree/pkg/idgen"
)

func TestTagIsAlphaBounded(t *testing.T) {
	for i := 0; i < 50; i++ {
		tag := idgen.Tag()
		if len(tag) == 0 {
			t.Fatal("empty tag")
		}
		first, last := tag[0], tag[len(tag)-1]
		if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
			t.Fatalf("tag %q does not start with a letter", tag)
		}
		if last == '-' || last == '_' {
			t.Fatalf("tag %q ends with a separator character", tag)
		}
	}
}

func TestTieIsThreeBytes(t *testing.T) {
	tie := idgen.Tie()
	if len(tie) != 3 {
		t.Fatalf("Tie() = %q, want length 3", tie)
	}
}

func TestTagsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tag := idgen.Tag()
		if seen[tag] {
			t.Fatalf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}
}
