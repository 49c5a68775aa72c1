package supervisor

import (
	"context"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool starts units one at a time in the order StartSync is called, waits
// for the first terminating event (any unit's Terminated, or the quit
// signal), and then stops every recorded unit in parallel, returning once
// all have resolved Stopped.
type Pool struct {
	log *zap.Logger

	mu      chan struct{} // binary semaphore; avoids importing sync for one field
	units   []*ProcessUnit
	failed  bool
	quit    *SignalFuture
}

// NewPool constructs an empty Pool.
func NewPool(log *zap.Logger) *Pool {
	p := &Pool{log: log, mu: make(chan struct{}, 1)}
	p.mu <- struct{}{}
	return p
}

func (p *Pool) lock()   { <-p.mu }
func (p *Pool) unlock() { p.mu <- struct{}{} }

// SetQuitSignal installs a SignalFuture for sig; its resolution is one of
// run()'s termination conditions.
func (p *Pool) SetQuitSignal(sig os.Signal) {
	p.lock()
	defer p.unlock()
	p.quit = WaitForSignal(p.log, sig)
}

// StartSync starts unit and blocks until it finishes starting (Started
// resolves). If a prior StartSync already failed, or the quit signal has
// already fired, unit is not started and StartSync returns false
// immediately.
func (p *Pool) StartSync(ctx context.Context, unit *ProcessUnit) bool {
	p.lock()
	if p.failed {
		p.unlock()
		return false
	}
	if p.quit != nil {
		if _, fired := p.quit.Resolved(); fired {
			p.unlock()
			return false
		}
	}
	p.units = append(p.units, unit)
	p.unlock()

	unit.Start(ctx)
	ok, _ := unit.Started.Resolved()

	if !ok {
		p.lock()
		p.failed = true
		p.unlock()
	}
	return ok
}

// Run waits for the first of: any managed unit's Terminated, or the quit
// signal, then issues Stop on every recorded unit concurrently and awaits
// all of them to Stopped. Stop fan-out always runs to completion even if
// ctx is already cancelled — a stop sequence, once started, is never
// aborted partway.
func (p *Pool) Run(ctx context.Context) error {
	p.lock()
	units := append([]*ProcessUnit(nil), p.units...)
	quit := p.quit
	p.unlock()

	if len(units) == 0 {
		return nil
	}

	done := make(chan *ProcessUnit, len(units))
	for _, u := range units {
		u := u
		go func() {
			<-u.Terminated.Done()
			done <- u
		}()
	}

	select {
	case u := <-done:
		code, _ := u.Terminated.Resolved()
		p.log.Info("unit terminated; initiating shutdown of siblings", zap.String("unit", u.name), zap.Int("exit_code", code))
	case <-waitQuit(quit):
		p.log.Info("quit signal received; initiating shutdown")
	case <-ctx.Done():
		p.log.Info("context cancelled; initiating shutdown")
	}

	stopCtx := context.Background()
	g, _ := errgroup.WithContext(stopCtx)
	for _, u := range units {
		u := u
		g.Go(func() error {
			u.Stop(stopCtx)
			return nil
		})
	}
	return g.Wait()
}

// AnyStartFailed reports whether a prior StartSync call failed. Callers use
// this to decide the process exit code.
func (p *Pool) AnyStartFailed() bool {
	p.lock()
	defer p.unlock()
	return p.failed
}

// Units returns a snapshot of the units recorded so far, insertion order.
// Used by internal/statusapi to list/describe/tail units.
func (p *Pool) Units() []*ProcessUnit {
	p.lock()
	defer p.unlock()
	return append([]*ProcessUnit(nil), p.units...)
}

func waitQuit(sf *SignalFuture) <-chan struct{} {
	if sf == nil {
		return nil
	}
	return sf.Done()
}
