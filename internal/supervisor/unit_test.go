package supervisor

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/unitd/internal/testutil"
	"github.com/edirooss/unitd/internal/unitconfig"
)

func baseConfig(execStart ...string) *unitconfig.ServiceConfig {
	cfg := &unitconfig.ServiceConfig{
		KillMode:    unitconfig.KillModeControlGroup,
		KillSignal:  15, // SIGTERM
		SendSIGKILL: true,
		User:        -1,
		Group:       -1,
	}
	sec := 1
	cfg.TimeoutStopSec = &sec
	for _, raw := range execStart {
		spec, err := unitconfig.NewCommandSpec(raw)
		if err != nil {
			panic(err)
		}
		cfg.ExecStart = append(cfg.ExecStart, spec)
	}
	return cfg
}

func TestProcessUnitSimpleStartAndStop(t *testing.T) {
	cfg := baseConfig("/bin/sh -c 'sleep 30'")
	u := New(zap.NewNop(), "test-simple", cfg, Options{})

	ctx := context.Background()
	u.Start(ctx)

	testutil.PollUntil(t, "Started to resolve", func() bool {
		_, ok := u.Started.Resolved()
		return ok
	})
	started, _ := u.Started.Resolved()
	if !started {
		t.Fatal("expected started=true for a long-running simple unit")
	}
	if u.State() != StateRunning {
		t.Fatalf("expected StateRunning, got %v", u.State())
	}

	u.Stop(ctx)
	testutil.PollUntil(t, "Stopped to resolve", func() bool {
		_, ok := u.Stopped.Resolved()
		return ok
	})
	if u.State() != StateStopped {
		t.Fatalf("expected StateStopped, got %v", u.State())
	}
	if _, ok := u.Terminated.Resolved(); !ok {
		t.Fatal("expected Terminated to resolve after kill escalation")
	}
}

func TestProcessUnitOneshotRunsAllEntriesAndReportsLastExitCode(t *testing.T) {
	cfg := baseConfig(
		"/bin/sh -c 'exit 0'",
		"-/bin/sh -c 'exit 5'", // ignored failure in the middle
		"/bin/sh -c 'exit 3'",
	)
	u := New(zap.NewNop(), "test-oneshot", cfg, Options{})

	u.Start(context.Background())
	testutil.PollUntil(t, "Started to resolve", func() bool {
		_, ok := u.Started.Resolved()
		return ok
	})

	started, _ := u.Started.Resolved()
	if started {
		t.Fatal("expected started=false: the final ExecStart entry exited 3 without ignore-failure")
	}
	code, ok := u.Terminated.Resolved()
	if !ok || code != 3 {
		t.Fatalf("expected terminated=3 (last entry), got (%d, %v)", code, ok)
	}

	u.Stop(context.Background())
	testutil.PollUntil(t, "Stopped to resolve", func() bool {
		_, ok := u.Stopped.Resolved()
		return ok
	})
}

func TestProcessUnitPreHookFailureSkipsMainSpawn(t *testing.T) {
	cfg := baseConfig("/bin/sh -c 'sleep 30'")
	failing, err := unitconfig.NewCommandSpec("/bin/sh -c 'exit 1'")
	if err != nil {
		t.Fatal(err)
	}
	cfg.ExecStartPre = []unitconfig.CommandSpec{failing}

	u := New(zap.NewNop(), "test-prehook-fail", cfg, Options{})
	u.Start(context.Background())

	testutil.PollUntil(t, "Started to resolve", func() bool {
		_, ok := u.Started.Resolved()
		return ok
	})
	started, _ := u.Started.Resolved()
	if started {
		t.Fatal("expected started=false on pre-hook failure")
	}
	if u.State() != StateStartFailed {
		t.Fatalf("expected StateStartFailed, got %v", u.State())
	}
	if _, ok := u.Terminated.Resolved(); ok {
		t.Fatal("expected Terminated to remain unresolved: main process was never spawned")
	}

	u.Stop(context.Background())
	testutil.PollUntil(t, "Stopped to resolve even after a pre-hook failure", func() bool {
		_, ok := u.Stopped.Resolved()
		return ok
	})
}

func TestProcessUnitPrematureExitBeforeConfirmFailsStart(t *testing.T) {
	cfg := baseConfig("/bin/sh -c 'exit 0'")
	u := New(zap.NewNop(), "test-premature-exit", cfg, Options{
		ConfirmStart: func(ctx context.Context) <-chan struct{} {
			ch := make(chan struct{})
			go func() {
				time.Sleep(500 * time.Millisecond)
				close(ch)
			}()
			return ch
		},
	})

	u.Start(context.Background())
	testutil.PollUntil(t, "Started to resolve", func() bool {
		_, ok := u.Started.Resolved()
		return ok
	})
	started, _ := u.Started.Resolved()
	if started {
		t.Fatal("expected started=false: main process exited before confirm-start fired")
	}

	u.Stop(context.Background())
	testutil.PollUntil(t, "Stopped to resolve", func() bool {
		_, ok := u.Stopped.Resolved()
		return ok
	})
}

func TestProcessUnitStopIsIdempotent(t *testing.T) {
	cfg := baseConfig("/bin/sh -c 'sleep 30'")
	u := New(zap.NewNop(), "test-idempotent-stop", cfg, Options{})
	u.Start(context.Background())
	testutil.PollUntil(t, "Started to resolve", func() bool {
		_, ok := u.Started.Resolved()
		return ok
	})

	u.Stop(context.Background())
	u.Stop(context.Background()) // must not block or panic
	testutil.PollUntil(t, "Stopped to resolve", func() bool {
		_, ok := u.Stopped.Resolved()
		return ok
	})
}
