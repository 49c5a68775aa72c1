package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/unitd/internal/testutil"
	"github.com/edirooss/unitd/internal/unitconfig"
)

func TestPoolStartSyncSkipsAfterEarlierFailure(t *testing.T) {
	p := NewPool(zap.NewNop())
	ctx := context.Background()

	failingPre, err := unitconfig.NewCommandSpec("/bin/sh -c 'exit 1'")
	if err != nil {
		t.Fatal(err)
	}
	failingCfg := baseConfig("/bin/sh -c 'sleep 30'")
	failingCfg.ExecStartPre = []unitconfig.CommandSpec{failingPre}
	failing := New(zap.NewNop(), "failing", failingCfg, Options{})

	if ok := p.StartSync(ctx, failing); ok {
		t.Fatal("expected StartSync to report failure for the failing unit")
	}
	if !p.AnyStartFailed() {
		t.Fatal("expected AnyStartFailed to be true")
	}

	second := New(zap.NewNop(), "second", baseConfig("/bin/sh -c 'sleep 30'"), Options{})
	if ok := p.StartSync(ctx, second); ok {
		t.Fatal("expected StartSync to skip and return false after a prior failure")
	}
	if _, started := second.Started.Resolved(); started {
		t.Fatal("second unit should never have been started")
	}

	// Clean up: the pool never recorded `second`, so stop it directly.
	second.Stop(ctx)
}

func TestPoolRunStopsAllUnitsOnFirstTermination(t *testing.T) {
	p := NewPool(zap.NewNop())
	ctx := context.Background()

	// Sleeps briefly before exiting so the default (immediate) confirm-start
	// wins the race deterministically, then terminates shortly after.
	shortLived := New(zap.NewNop(), "short", baseConfig("/bin/sh -c 'sleep 0.2; exit 0'"), Options{})
	longLived := New(zap.NewNop(), "long", baseConfig("/bin/sh -c 'sleep 30'"), Options{})

	if ok := p.StartSync(ctx, shortLived); !ok {
		t.Fatal("expected short-lived unit to start successfully")
	}
	if ok := p.StartSync(ctx, longLived); !ok {
		t.Fatal("expected long-lived unit to start successfully")
	}

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to return after first unit terminated")
	}

	testutil.PollUntil(t, "long-lived unit to stop", func() bool {
		_, ok := longLived.Stopped.Resolved()
		return ok
	})
}
