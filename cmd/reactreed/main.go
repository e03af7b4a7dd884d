// Package main is the reactreed executable: it wires the state-tree
// engine to its external collaborators (the filesystem loader, the
// introspection HTTP surface, the diagnostic snapshot store) and runs
// until signaled to stop. Grounded on cmd/aisnodeprofile/main.go's
// os.Exit(run())-wrapped entry point and ais/daemon.go's flag-parsing
// idiom, scaled down to this engine's much smaller CLI surface.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reactree/reactree/pkg/config"
	"github.com/reactree/reactree/pkg/fsloader"
	"github.com/reactree/reactree/pkg/introspect"
	"github.com/reactree/reactree/pkg/snapshot"
	"github.com/reactree/reactree/pkg/tree"
	"github.com/reactree/reactree/pkg/xlog"
)

var cli struct {
	configDir        string
	introspectAddr   string
	introspectToken  string
	snapshotPath     string
	snapshotInterval time.Duration
}

func init() {
	flag.StringVar(&cli.configDir, "config", "", "configuration directory to watch (changes working directory before starting)")
	flag.StringVar(&cli.introspectAddr, "introspect", "", "bind address for the read-only sys/metrics HTTP surface (empty disables it)")
	flag.StringVar(&cli.introspectToken, "introspect-token", "", "HMAC secret that the JWT bearer token on introspection requests must be signed with, if set")
	flag.StringVar(&cli.snapshotPath, "snapshot", "", "path to the diagnostic resolved-tree snapshot store (empty disables it)")
	flag.DurationVar(&cli.snapshotInterval, "snapshot-interval", 0, "how often to refresh the diagnostic snapshot store while running (zero: only save once at shutdown)")
}

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	if cli.configDir != "" {
		if err := os.Chdir(cli.configDir); err != nil {
			xlog.Errorf("reactreed: cannot chdir to %q: %v", cli.configDir, err)
			return 1
		}
	}

	cfg := config.GCO.BeginUpdate()
	cfg.ConfigDir = "."
	cfg.IntrospectAddr = cli.introspectAddr
	cfg.IntrospectToken = cli.introspectToken
	cfg.SnapshotPath = cli.snapshotPath
	cfg.SnapshotInterval = cli.snapshotInterval
	config.GCO.CommitUpdate(cfg)

	t := tree.New()
	defer t.Close()

	loader := &fsloader.Loader{
		Dir:              cfg.ConfigDir,
		DebounceInterval: cfg.DebounceInterval,
		Sink:             t,
	}
	if err := loader.Start(); err != nil {
		xlog.Errorf("reactreed: initial load of %q failed: %v", cfg.ConfigDir, err)
		return 1
	}
	defer loader.Stop()

	var snapStore *snapshot.Store
	var snapStop, snapDone chan struct{}
	if cfg.SnapshotPath != "" {
		var err error
		snapStore, err = snapshot.Open(cfg.SnapshotPath)
		if err != nil {
			xlog.Errorf("reactreed: cannot open snapshot store %q: %v", cfg.SnapshotPath, err)
			return 1
		}
		defer snapStore.Close()

		if cfg.SnapshotInterval > 0 {
			snapStop = make(chan struct{})
			snapDone = make(chan struct{})
			go func() {
				defer close(snapDone)
				runSnapshotLoop(t, snapStore, cfg.SnapshotInterval, snapStop)
			}()
		}
	}

	var introspectSrv *introspect.Server
	if cfg.IntrospectAddr != "" {
		introspectSrv = introspect.New(cfg.IntrospectAddr, cfg.IntrospectToken, t)
		go func() {
			if err := introspectSrv.ListenAndServe(); err != nil {
				xlog.Errorf("reactreed: introspect server stopped: %v", err)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	xlog.Infof("reactreed: shutting down")
	if introspectSrv != nil {
		_ = introspectSrv.Shutdown()
	}
	if snapStop != nil {
		close(snapStop)
		<-snapDone
	}
	if snapStore != nil {
		if v := t.Get(nil, tree.Resolved); v != nil {
			_ = snapStore.Save(v)
		}
	}
	xlog.Flush()
	return 0
}

// runSnapshotLoop mirrors the resolved snapshot into store every
// interval until stop is closed, so the diagnostic mirror reflects
// roughly-current state rather than only whatever was resolved at
// process shutdown. A failed Save is logged and retried on the next
// tick rather than stopping the loop.
func runSnapshotLoop(t *tree.Tree, store *snapshot.Store, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if v := t.Get(nil, tree.Resolved); v != nil {
				if err := store.Save(v); err != nil {
					xlog.Warningf("reactreed: periodic snapshot save failed: %v", err)
				}
			}
		}
	}
}
