// Package supervisor implements the process lifecycle engine and pool:
// ProcessUnit drives one unit through
// ExecStartPre → ExecStart → ExecStartPost → (run) → ExecStop →
// kill-escalation → ExecStopPost, and Pool starts units synchronously,
// waits for the first terminating event, and tears them all down.
//
// Grounded on internal/infrastructure/processmgr/process.go and
// process_manager.go's supervise loops (zap logging, SysProcAttr,
// SIGTERM→grace→SIGKILL escalation), generalized to cover the full
// ExecStartPre/Post/Stop/StopPost hook sequencing.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/edirooss/unitd/internal/unitconfig"
	"github.com/edirooss/unitd/pkg/errdump"
)

// State is a ProcessUnit's position in its lifecycle state diagram.
type State int

const (
	StateIdle State = iota
	StatePreHooks
	StateSpawning
	StateRunning
	StateExited
	StateStartFailed
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreHooks:
		return "pre-hooks"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateStartFailed:
		return "start-failed"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TransitionPublisher receives a best-effort notification every time a
// unit's state changes. Wired to internal/eventpub in production; nil means
// no publication, and the unit behaves identically either way.
type TransitionPublisher interface {
	Publish(ctx context.Context, t EventpubTransition)
}

// EventpubTransition mirrors eventpub.Transition without this package
// importing eventpub, so the lifecycle engine stays usable with no Redis
// dependency at all.
type EventpubTransition struct {
	Unit     string
	State    string
	ExitCode *int
}

// Options configures a ProcessUnit beyond its ServiceConfig.
type Options struct {
	// ConfirmStart is the overridable "confirm-start" hook; it defaults to
	// a channel that is already closed, i.e. start is confirmed the
	// instant the main process is spawned. Tests substitute a slower hook
	// to exercise the premature-exit race.
	ConfirmStart func(ctx context.Context) <-chan struct{}

	// Publisher, if set, is notified of every state transition. Optional.
	Publisher TransitionPublisher
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func defaultConfirmStart(ctx context.Context) <-chan struct{} {
	return closedChan()
}

// ProcessUnit owns one unit's full lifecycle: pre-hooks, main process (or
// Oneshot ExecStart sequence), post-hooks, stop sequence, and kill
// escalation. Started, Terminated and Stopped each resolve at most once
// and retain their value for the unit's lifetime; Terminated stays
// unresolved if no main process was ever spawned.
type ProcessUnit struct {
	log    *zap.Logger
	name   string
	cfg    *unitconfig.ServiceConfig
	runner *CommandRunner
	opts   Options

	// Started resolves true once every pre-hook, the main spawn (or full
	// Oneshot ExecStart sequence) and every post-hook has run without an
	// unignored failure; false otherwise.
	Started *Future[bool]
	// Terminated resolves to the main process's exit code (waitpid
	// convention: negative == -signum) the moment it actually exits. For
	// Oneshot units this is the last ExecStart entry's exit code.
	Terminated *Future[int]
	// Stopped resolves once the stop sequence (ExecStop, kill escalation,
	// ExecStopPost, pump teardown) has fully drained.
	Stopped *Future[struct{}]

	mu         sync.Mutex
	state      State
	mainPID    int
	mainPumps  []*StdioPump
	logs       *LogBuffer
	pumpCancel context.CancelFunc
	pumpWG     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// New constructs a ProcessUnit named name (used as the default syslog tag
// and in the pool's logs) for cfg.
func New(log *zap.Logger, name string, cfg *unitconfig.ServiceConfig, opts Options) *ProcessUnit {
	if opts.ConfirmStart == nil {
		opts.ConfirmStart = defaultConfirmStart
	}
	return &ProcessUnit{
		log:        log.Named(name),
		name:       name,
		cfg:        cfg,
		runner:     NewCommandRunner(log.Named(name)),
		opts:       opts,
		logs:       &LogBuffer{},
		Started:    NewFuture[bool](),
		Terminated: NewFuture[int](),
		Stopped:    NewFuture[struct{}](),
	}
}

func (u *ProcessUnit) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()

	if u.opts.Publisher == nil {
		return
	}
	var exitCode *int
	if code, ok := u.Terminated.Resolved(); ok {
		exitCode = &code
	}
	u.opts.Publisher.Publish(context.Background(), EventpubTransition{
		Unit:     u.name,
		State:    s.String(),
		ExitCode: exitCode,
	})
}

// State reports the unit's current position in the lifecycle, for
// observability surfaces such as internal/statusapi.
func (u *ProcessUnit) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *ProcessUnit) tag() string {
	if u.cfg.SyslogIdentifier != "" {
		return u.cfg.SyslogIdentifier
	}
	return u.name
}

// Name returns the unit's name, as given to New.
func (u *ProcessUnit) Name() string { return u.name }

// Logs returns the unit's retained stdio lines, newest first. n <= 0 means
// "as many as are retained" (up to the buffer's fixed capacity).
func (u *ProcessUnit) Logs(n int) []string {
	return u.logs.Read(n)
}

// Start runs the unit's full start sequence to completion, resolving
// Started. It must be called at most once; subsequent calls are no-ops.
func (u *ProcessUnit) Start(ctx context.Context) {
	u.startOnce.Do(func() { u.start(ctx) })
}

func (u *ProcessUnit) start(ctx context.Context) {
	u.setState(StatePreHooks)
	if !u.runAbortingHooks(ctx, u.cfg.ExecStartPre, "pre") {
		u.setState(StateStartFailed)
		u.Started.Resolve(false)
		return
	}

	u.setState(StateSpawning)

	var mainOK bool
	if u.cfg.IsOneshot() {
		mainOK = u.runOneshotExecStart(ctx)
	} else {
		mainOK = u.spawnSimpleMain(ctx)
	}

	if !mainOK {
		u.setState(StateStartFailed)
		u.Started.Resolve(false)
		return
	}

	if u.cfg.IsOneshot() {
		u.setState(StateExited)
	} else {
		u.setState(StateRunning)
	}

	if !u.runAbortingHooks(ctx, u.cfg.ExecStartPost, "post") {
		// The main child (if Simple) remains running by design; stop()
		// will reap it.
		u.Started.Resolve(false)
		return
	}

	u.Started.Resolve(true)
}

// runAbortingHooks runs specs sequentially, stopping at the first
// unignored failure.
func (u *ProcessUnit) runAbortingHooks(ctx context.Context, specs []unitconfig.CommandSpec, phase string) bool {
	env := u.resolveEnv()
	cwd := u.resolveCWD()
	for _, spec := range specs {
		outcome := u.runner.Run(ctx, spec, env, cwd, u.cfg.User, u.cfg.Group, u.tag()+":"+phase, newRingSink(u))
		if outcome.Err != nil {
			u.log.Warn("hook spawn failed", zap.String("phase", phase), zap.Strings("argv", spec.Argv), zap.Error(outcome.Err), zap.String("chain", errdump.Chain(outcome.Err)))
			return false
		}
		if !outcome.Success {
			u.log.Warn("hook failed", zap.String("phase", phase), zap.Strings("argv", spec.Argv), zap.Int("exit_code", outcome.ExitCode))
			return false
		}
	}
	return true
}

// runOneshotExecStart runs every ExecStart entry to completion regardless
// of individual failure, resolving Terminated to the last entry's exit
// code.
func (u *ProcessUnit) runOneshotExecStart(ctx context.Context) bool {
	env := u.resolveEnv()
	cwd := u.resolveCWD()

	allOK := true
	lastCode := 0
	for _, spec := range u.cfg.ExecStart {
		outcome := u.runner.Run(ctx, spec, env, cwd, u.cfg.User, u.cfg.Group, u.tag(), newRingSink(u))
		if outcome.Err != nil {
			u.log.Warn("oneshot ExecStart spawn failed", zap.Strings("argv", spec.Argv), zap.Error(outcome.Err), zap.String("chain", errdump.Chain(outcome.Err)))
			allOK = false
			continue
		}
		lastCode = outcome.ExitCode
		if !outcome.Success {
			allOK = false
		}
	}
	u.Terminated.Resolve(lastCode)
	return allOK
}

// spawnSimpleMain spawns the single ExecStart entry of a Simple unit,
// attaches stdio pumps, and races the confirm-start hook against premature
// exit.
func (u *ProcessUnit) spawnSimpleMain(ctx context.Context) bool {
	spec := u.cfg.ExecStart[0]
	env := u.resolveEnv()
	cwd := u.resolveCWD()

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = env
	cmd.SysProcAttr = sysProcAttrFor(u.cfg.User, u.cfg.Group, true)
	cmd.Stdin = nil // reads from os.DevNull

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		u.log.Error("stdout pipe setup failed", zap.Error(err))
		return false
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		u.log.Error("stderr pipe setup failed", zap.Error(err))
		return false
	}

	if err := cmd.Start(); err != nil {
		u.log.Error("main process spawn failed", zap.Strings("argv", spec.Argv), zap.Error(err))
		return false
	}

	u.mu.Lock()
	u.mainPID = cmd.Process.Pid
	u.mu.Unlock()

	pumpCtx, cancel := context.WithCancel(context.Background())
	u.mu.Lock()
	u.pumpCancel = cancel
	u.mu.Unlock()

	outPump := NewStdioPump(u.log, u.tag(), "stdout", newRingSink(u))
	errPump := NewStdioPump(u.log, u.tag(), "stderr", newRingSink(u))
	outPump.SetPID(cmd.Process.Pid)
	errPump.SetPID(cmd.Process.Pid)
	u.mu.Lock()
	u.mainPumps = []*StdioPump{outPump, errPump}
	u.mu.Unlock()

	u.pumpWG.Add(2)
	go func() { defer u.pumpWG.Done(); outPump.Run(pumpCtx, stdout) }()
	go func() { defer u.pumpWG.Done(); errPump.Run(pumpCtx, stderr) }()

	go func() {
		waitErr := cmd.Wait()
		code := exitCodeFromWaitError(waitErr)
		u.log.Info("main process exited", zap.Int("pid", cmd.Process.Pid), zap.Int("exit_code", code))
		u.Terminated.Resolve(code)
	}()

	select {
	case <-u.opts.ConfirmStart(ctx):
		return true
	case <-u.Terminated.Done():
		u.log.Warn("main process exited before start was confirmed")
		return false
	}
}

// Stop runs the unit's full stop sequence to completion, resolving
// Stopped. Safe to call even if Start was never called or never finished;
// safe to call more than once (subsequent calls are no-ops).
func (u *ProcessUnit) Stop(ctx context.Context) {
	u.stopOnce.Do(func() { u.stop(ctx) })
}

func (u *ProcessUnit) stop(ctx context.Context) {
	u.setState(StateStopping)

	if started, resolved := u.Started.Resolved(); resolved && started {
		u.runBestEffortHooks(ctx, u.cfg.ExecStop, "stop")
	}

	u.kill(ctx)

	u.runBestEffortHooks(ctx, u.cfg.ExecStopPost, "stoppost")

	u.mu.Lock()
	cancel := u.pumpCancel
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	u.pumpWG.Wait()

	u.setState(StateStopped)
	u.Stopped.Resolve(struct{}{})
}

// runBestEffortHooks runs every spec, ignoring individual failures and
// never skipping later commands.
func (u *ProcessUnit) runBestEffortHooks(ctx context.Context, specs []unitconfig.CommandSpec, phase string) {
	env := u.resolveEnv()
	cwd := u.resolveCWD()
	for _, spec := range specs {
		outcome := u.runner.Run(ctx, spec, env, cwd, u.cfg.User, u.cfg.Group, u.tag()+":"+phase, newRingSink(u))
		if outcome.Err != nil {
			u.log.Warn("stop hook spawn failed", zap.String("phase", phase), zap.Strings("argv", spec.Argv), zap.Error(outcome.Err), zap.String("chain", errdump.Chain(outcome.Err)))
			continue
		}
		if !outcome.Success {
			u.log.Warn("stop hook failed", zap.String("phase", phase), zap.Strings("argv", spec.Argv), zap.Int("exit_code", outcome.ExitCode))
		}
	}
}

// kill implements the signal-escalation sequence: KillSignal, wait up to
// TimeoutStopSec, optionally SIGKILL, wait again, and give up logging a
// warning if the process is still alive.
func (u *ProcessUnit) kill(ctx context.Context) {
	if u.cfg.KillMode == unitconfig.KillModeNone {
		return
	}
	if _, done := u.Terminated.Resolved(); done {
		return
	}

	u.mu.Lock()
	pid := u.mainPID
	u.mu.Unlock()
	if pid == 0 {
		return
	}

	target := pid
	if u.cfg.KillMode == unitconfig.KillModeControlGroup {
		target = -pid
	}

	u.log.Info("sending kill signal", zap.Int("target", target), zap.Int("signal", u.cfg.KillSignal))
	if err := syscall.Kill(target, syscall.Signal(u.cfg.KillSignal)); err != nil {
		u.log.Warn("kill signal failed", zap.Error(err))
	}

	if u.waitForTermination(u.cfg.TimeoutStopSec) {
		return
	}

	if u.cfg.SendSIGKILL {
		u.log.Warn("timeout expired; sending SIGKILL", zap.Int("target", target))
		if err := syscall.Kill(target, syscall.SIGKILL); err != nil {
			u.log.Warn("SIGKILL failed", zap.Error(err))
		}
		if u.waitForTermination(u.cfg.TimeoutStopSec) {
			return
		}
	}

	u.log.Warn("gave up waiting for process to exit", zap.Error(ErrKillEscalationExhausted), zap.Int("target", target))
}

// waitForTermination blocks until Terminated resolves or timeoutSec
// elapses (nil == infinity), returning whether it resolved in time.
func (u *ProcessUnit) waitForTermination(timeoutSec *int) bool {
	if timeoutSec == nil {
		<-u.Terminated.Done()
		return true
	}
	timer := time.NewTimer(time.Duration(*timeoutSec) * time.Second)
	defer timer.Stop()
	select {
	case <-u.Terminated.Done():
		return true
	case <-timer.C:
		return false
	}
}

func (u *ProcessUnit) resolveEnv() []string {
	env, err := childEnvironment(os.Environ(), u.cfg.User)
	if err != nil {
		u.log.Warn("child environment setup failed; using supervisor environment", zap.Error(err))
		return os.Environ()
	}
	return env
}

func (u *ProcessUnit) resolveCWD() string {
	dir, fellBack, err := u.cfg.ResolveWorkingDirectory()
	if err != nil {
		u.log.Warn("working directory resolution failed", zap.Error(err))
		return ""
	}
	if fellBack {
		u.log.Warn("WorkingDirectory=~ could not be resolved for target user; falling back to supervisor cwd")
	}
	return dir
}

