// Package path implements the typed path algebra used throughout reactree:
// an ordered sequence of string keys or non-negative integer indices,
// parsed from and printed to a slash-separated textual form.
package path

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidPathElement is returned when a path is built from a value that
// is neither a string nor a non-negative int.
var ErrInvalidPathElement = errors.New("path element must be a string or a non-negative integer")

// Element is one segment of a Path: either a string key or an integer index.
type Element struct {
	isIndex bool
	key     string
	index   int
}

// Key builds a string-keyed path element.
func Key(k string) Element { return Element{key: k} }

// Index builds an integer-indexed path element. Negative indices are
// rejected by callers that interpret a Path against a Value; Index itself
// does not validate.
func Index(i int) Element { return Element{isIndex: true, index: i} }

// IsIndex reports whether the element is an integer index.
func (e Element) IsIndex() bool { return e.isIndex }

// Key returns the string key. Only meaningful when !IsIndex().
func (e Element) Key() string { return e.key }

// Index returns the integer index. Only meaningful when IsIndex().
func (e Element) Index() int { return e.index }

func (e Element) String() string {
	if e.isIndex {
		return "[" + strconv.Itoa(e.index) + "]"
	}
	switch e.key {
	case ".":
		return "%2E"
	case "..":
		return "%2E."
	}
	s := strings.ReplaceAll(e.key, "%", "%25")
	s = strings.ReplaceAll(s, "/", "%2F")
	if strings.HasPrefix(s, "[") {
		s = "%5B" + s[1:]
	}
	return s
}

// Path is an ordered sequence of path elements.
type Path []Element

// Empty is the root path.
var Empty = Path{}

// Append returns a new path with elem appended.
func (p Path) Append(elem Element) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// Concat returns a new path with other appended after p.
func (p Path) Concat(other Path) Path {
	out := make(Path, 0, len(p)+len(other))
	out = append(out, p...)
	out = append(out, other...)
	return out
}

// HasPrefix reports whether prefix is a prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i, e := range prefix {
		if e != p[i] {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// compareElement orders two elements: keys sort by string value, indices by
// numeric value, and a key sorts before an index (an arbitrary but
// stable tie-break — the two never appear as siblings produced by the
// same container in practice).
func compareElement(a, b Element) int {
	if a.isIndex != b.isIndex {
		if a.isIndex {
			return 1
		}
		return -1
	}
	if a.isIndex {
		switch {
		case a.index < b.index:
			return -1
		case a.index > b.index:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a.key < b.key:
		return -1
	case a.key > b.key:
		return 1
	default:
		return 0
	}
}

// Less reports whether p sorts before other in the element-wise
// lexicographic order used by plug-in-mount reconciliation: the same
// order that sorting map keys ascending and recursing depth-first
// produces.
func (p Path) Less(other Path) bool {
	n := len(p)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := compareElement(p[i], other[i]); c != 0 {
			return c < 0
		}
	}
	return len(p) < len(other)
}

var integerElementRe = mustCompileDigits()

// Parse splits s on "/". An absolute path (leading "/") ignores base; a
// relative path is resolved against base. "." is skipped; ".." pops one
// element (a no-op at the root of the result so far). "[n]" decodes to an
// integer element; any other segment is percent-decoded and kept as a
// string key.
func Parse(s string, base Path) Path {
	absolute := strings.HasPrefix(s, "/")
	s = strings.Trim(s, "/")
	if s == "" {
		if absolute {
			return Path{}
		}
		return append(Path{}, base...)
	}

	var result Path
	if absolute {
		result = Path{}
	} else {
		result = append(Path{}, base...)
	}

	for _, e := range strings.Split(s, "/") {
		switch e {
		case "..":
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		case ".":
			// skip
		default:
			result = append(result, parseElement(e))
		}
	}
	return result
}

func parseElement(e string) Element {
	if m := integerElementRe.FindStringSubmatch(e); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return Index(n)
		}
	}
	return Key(unescape(e))
}

// Format renders p as its lossless textual form.
func Format(p Path) string {
	var b strings.Builder
	b.WriteByte('/')
	for i, e := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, ok := hexByte(s[i+1], s[i+2]); ok {
				b.WriteByte(v)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexByte(hi, lo byte) (byte, bool) {
	h, ok1 := hexDigit(hi)
	l, ok2 := hexDigit(lo)
	if !ok1 || !ok2 {
		return 0, false
	}
	return h<<4 | l, true
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
