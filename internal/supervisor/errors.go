package supervisor

import "errors"

// Sentinel errors for the unit lifecycle's named failure kinds.
var (
	// ErrAlreadyStarted names the repeated-start condition. ProcessUnit.Start
	// does not return it: a second call to Start is a silent no-op.
	ErrAlreadyStarted = errors.New("unit already started")
	// ErrKillEscalationExhausted marks that the kill escalation (KillSignal,
	// then SIGKILL if SendSIGKILL is set) did not reap the main process
	// within TimeoutStopSec; logged at warn, Terminated may remain
	// unresolved, Stopped still resolves regardless.
	ErrKillEscalationExhausted = errors.New("kill escalation exhausted: process did not exit")
)

// SpawnError wraps an exec lookup/permission failure so callers can
// distinguish it from a hook's non-zero exit.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	return "spawn failed: " + e.Err.Error()
}

func (e *SpawnError) Unwrap() error { return e.Err }
