package config_test

import (
	"testing"
	"time"

	"github.com/reactree/reactree/pkg/config"
)

func TestDefaultIsPublishedOnInit(t *testing.T) {
	cfg := config.GCO.Get()
	if cfg.DebounceInterval != 2*time.Second {
		t.Fatalf("DebounceInterval = %v, want 2s", cfg.DebounceInterval)
	}
}

func TestBeginCommitUpdatePublishesClone(t *testing.T) {
	before := config.GCO.Get()

	update := config.GCO.BeginUpdate()
	update.ConfigDir = "/tmp/example"
	config.GCO.CommitUpdate(update)

	after := config.GCO.Get()
	if after.ConfigDir != "/tmp/example" {
		t.Fatalf("ConfigDir = %q, want /tmp/example", after.ConfigDir)
	}
	if before.ConfigDir == after.ConfigDir {
		t.Fatal("expected ConfigDir to have changed")
	}
	if before == after {
		t.Fatal("CommitUpdate should publish a distinct *Config, not mutate the old one in place")
	}

	// restore default for any other test relying on it
	reset := config.GCO.BeginUpdate()
	reset.ConfigDir = ""
	config.GCO.CommitUpdate(reset)
}

func TestDiscardUpdateLeavesConfigUnchanged(t *testing.T) {
	before := config.GCO.Get()
	update := config.GCO.BeginUpdate()
	update.ConfigDir = "/should/not/stick"
	config.GCO.DiscardUpdate()

	after := config.GCO.Get()
	if after != before {
		t.Fatal("DiscardUpdate should not publish the in-progress clone")
	}
}
