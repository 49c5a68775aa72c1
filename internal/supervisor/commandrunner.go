package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/edirooss/unitd/internal/unitconfig"
)

// Outcome is the result of running one auxiliary command to completion.
// ExitCode follows the standard waitpid encoding convention: a non-negative
// value is the process's own exit code; a negative value -N means the
// process was killed by signal N.
type Outcome struct {
	Success  bool
	ExitCode int
	Err      error // non-nil only when Err is a *SpawnError
}

// CommandRunner runs one auxiliary command (ExecStartPre/Post/Stop/StopPost
// entry) to completion, honoring the "-" ignore-failure prefix. Grounded on
// processmgr.process's pipe setup/teardown discipline, simplified to the
// run-to-completion case (no readiness, no long-lived supervision).
type CommandRunner struct {
	log *zap.Logger
}

// NewCommandRunner constructs a CommandRunner that logs through log.
func NewCommandRunner(log *zap.Logger) *CommandRunner {
	return &CommandRunner{log: log}
}

// Run spawns spec.Argv with the given env/cwd, applies uid/gid via the
// pre-exec credential hook (only if the supervisor itself is root and the
// target id is non-zero), attaches two StdioPumps tagged with tag, waits for
// exit, and returns the outcome. Cancelling ctx kills the child and its
// process group.
func (r *CommandRunner) Run(ctx context.Context, spec unitconfig.CommandSpec, env []string, cwd string, uid, gid int, tag string, sink LineLogger) Outcome {
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = cwd
	cmd.Env = env
	cmd.SysProcAttr = sysProcAttrFor(uid, gid, true)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Outcome{Err: &SpawnError{Argv: spec.Argv, Err: err}}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{Err: &SpawnError{Argv: spec.Argv, Err: err}}
	}

	if err := cmd.Start(); err != nil {
		return Outcome{Err: &SpawnError{Argv: spec.Argv, Err: err}}
	}

	outPump := NewStdioPump(r.log, tag, "stdout", sink)
	errPump := NewStdioPump(r.log, tag, "stderr", sink)
	outPump.SetPID(cmd.Process.Pid)
	errPump.SetPID(cmd.Process.Pid)

	pumpCtx, cancelPumps := context.WithCancel(context.Background())
	defer cancelPumps()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); outPump.Run(pumpCtx, stdout) }()
	go func() { defer wg.Done(); errPump.Run(pumpCtx, stderr) }()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		waitErr = <-waitDone
	}

	wg.Wait()

	exitCode := exitCodeFromWaitError(waitErr)
	success := exitCode == 0 || spec.IgnoreFailure
	return Outcome{Success: success, ExitCode: exitCode}
}

// exitCodeFromWaitError translates cmd.Wait()'s error into the waitpid
// convention used throughout this package: 0 on clean exit, the process's
// own exit code if non-zero, or -N if killed by signal N.
func exitCodeFromWaitError(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return -1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return -int(status.Signal())
	}
	return status.ExitStatus()
}
