// Package lifecycle provides the exit-event-plus-signal-registration glue
// shared by the nexus, publisher, and subscriber: a once-only Trigger, an
// atomically observable running flag, and a helper that wires SIGINT/
// SIGTERM to a component's Stop method the same way
// lao-tseu-is-alive-go-cloud-events-pubsub-nats's natsPubSub.go wires its
// own shutdown to an OS signal channel.
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Exit is a cooperative shutdown flag checked on every poll cycle by the
// workers of a single endpoint (publisher or subscriber). Its Trigger is
// safe to call more than once.
type Exit struct {
	once sync.Once
	done chan struct{}
}

// NewExit returns a ready-to-use Exit.
func NewExit() *Exit {
	return &Exit{done: make(chan struct{})}
}

// Trigger sets the exit flag. It is idempotent: calling it more than once
// has no additional effect.
func (e *Exit) Trigger() {
	e.once.Do(func() { close(e.done) })
}

// Set reports whether Trigger has been called.
func (e *Exit) Set() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when Trigger is called, for use in select
// statements alongside channel-based suspension points.
func (e *Exit) Done() <-chan struct{} {
	return e.done
}

// NotifyStop registers stop to run once on the first SIGINT or SIGTERM.
// It returns a function the caller should defer to release the signal
// registration. Unlike a bare os/signal + atexit global, this does not
// touch any process-wide registry beyond signal.Notify itself, so an
// embedding program can register its own handlers independently.
func NotifyStop(stop func()) (release func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			stop()
		case <-done:
		}
	}()

	return func() {
		close(done)
		signal.Stop(sigCh)
	}
}
