// Package idgen stamps the engine's live objects — plugin instances,
// registered commands, subscriptions — with short, human-readable
// diagnostic handles, so a log line or an introspect payload can name
// "which one" without leaking an internal pointer. Built on
// github.com/teris-io/shortid the way cmn.GenUUID stamps aistore's own
// request/xaction ids with the same generator.
package idgen

import (
	"math/rand"

	"github.com/teris-io/shortid"
	"go.uber.org/atomic"
)

// handleABC is a 64-character alphabet for shortid: digits, then lower
// and upper case letters, bracketed by the two non-alphabetic
// characters shortid needs to fill out the set to 64. Grouped instead
// of shuffled so a glance at the constant shows exactly what's in it.
const handleABC = "_0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ-"

var (
	generator *shortid.Shortid
	counter   atomic.Int32
)

func init() {
	generator = shortid.MustNew(4, handleABC, 1)
}

// Tag mints a diagnostic handle for a newly-constructed plugin
// instance, command, or subscription. Forced to start and end on a
// letter so it never reads as a bare punctuation run in a log line or
// a sys.* introspection payload.
func Tag() string {
	raw := generator.MustGenerate()
	return clamp(raw)
}

// clamp pads raw with a random letter on whichever end isn't already
// alphabetic.
func clamp(raw string) string {
	out := raw
	if !letter(out[0]) {
		out = randLetter() + out
	}
	if !letter(out[len(out)-1]) {
		out = out + randLetter()
	}
	return out
}

func randLetter() string {
	return string(rune('a' + rand.Int()%26))
}

func letter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Tie produces a 3-character tiebreaker that advances on every call
// within this process, for disambiguating events that land in the same
// update pass or the same log timestamp (e.g. one Invoke against
// another). Not a substitute for Tag: it depends only on the counter
// modulo 64, so it repeats every 64 calls and across process restarts.
func Tie() string {
	n := uint32(counter.Add(1))
	return string([]byte{
		handleABC[(n*7)&0x3f],
		handleABC[(n*13+5)&0x3f],
		handleABC[(n^0x2a)&0x3f],
	})
}
