package supervisor

import (
	"os"
	"os/signal"

	"go.uber.org/zap"
)

// SignalFuture is a one-shot event fired the first time the given OS signal
// is delivered, grounded on unitd/signals.py's create_future_for_signal.
// Installing it registers a signal handler; resolution deregisters it, so
// a second delivery after resolution falls through to the OS default
// disposition rather than being observed again.
type SignalFuture struct {
	*Future[os.Signal]
	sig os.Signal
	ch  chan os.Signal
}

// WaitForSignal installs a handler for sig and returns the future that
// resolves on its first delivery.
func WaitForSignal(log *zap.Logger, sig os.Signal) *SignalFuture {
	sf := &SignalFuture{
		Future: NewFuture[os.Signal](),
		sig:    sig,
		ch:     make(chan os.Signal, 1),
	}

	log.Debug("installing signal handler", zap.String("signal", sig.String()))
	signal.Notify(sf.ch, sig)

	go func() {
		received, ok := <-sf.ch
		if !ok {
			return
		}
		log.Debug("signal received", zap.String("signal", received.String()))
		signal.Stop(sf.ch)
		sf.Resolve(received)
	}()

	return sf
}
