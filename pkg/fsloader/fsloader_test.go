package fsloader_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/reactree/reactree/pkg/fsloader"
)

type recordingSink struct {
	mu    sync.Mutex
	calls []interface{}
}

func (s *recordingSink) SetRawState(x interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, x)
	return nil
}

func (s *recordingSink) last() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitialWalkRespectsFileTypeRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), `{"n":1}`)
	writeFile(t, filepath.Join(dir, "b.txt"), "hello")
	writeFile(t, filepath.Join(dir, "c"), "raw")
	writeFile(t, filepath.Join(dir, ".hidden"), "ignored")
	writeFile(t, filepath.Join(dir, "d~"), "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, "sub", "e.json"), `{"m":2}`)

	sink := &recordingSink{}
	l := &fsloader.Loader{Dir: dir, DebounceInterval: 20 * time.Millisecond, Sink: sink}
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	got, ok := sink.last().(map[string]interface{})
	if !ok {
		t.Fatalf("expected a map, got %T", sink.last())
	}
	if got["a"].(map[string]interface{})["n"].(float64) != 1 {
		t.Errorf("a.json not parsed as JSON: %#v", got["a"])
	}
	if got["b"] != "hello" {
		t.Errorf("b.txt not read as text: %#v", got["b"])
	}
	if got["c"] != "raw" {
		t.Errorf("c not read as raw text: %#v", got["c"])
	}
	if _, present := got[".hidden"]; present {
		t.Errorf("dotfile should be ignored, got %#v", got)
	}
	if _, present := got["d~"]; present {
		t.Errorf("tilde-suffixed file should be ignored, got %#v", got)
	}
	sub, ok := got["sub"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected sub/ to become a nested mapping, got %#v", got["sub"])
	}
	if sub["e"].(map[string]interface{})["m"].(float64) != 2 {
		t.Errorf("sub/e.json not parsed: %#v", sub["e"])
	}
}

func TestDebouncedRescanDeliversOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "1")

	sink := &recordingSink{}
	l := &fsloader.Loader{Dir: dir, DebounceInterval: 50 * time.Millisecond, Sink: sink}
	if err := l.Start(); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	if sink.count() != 1 {
		t.Fatalf("expected exactly one initial delivery, got %d", sink.count())
	}

	writeFile(t, filepath.Join(dir, "a.txt"), "2")
	writeFile(t, filepath.Join(dir, "a.txt"), "3")

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 2 {
		t.Fatalf("expected one debounced rescan delivery, got %d deliveries", sink.count())
	}
	got := sink.last().(map[string]interface{})
	if got["a"] != "3" {
		t.Errorf("rescan did not reflect latest content: %#v", got["a"])
	}
}
