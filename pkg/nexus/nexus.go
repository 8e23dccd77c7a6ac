// Package nexus implements the central relay node: it binds a
// subscriber-facing XPUB socket and a publisher-facing XSUB socket, bridges
// them with zmq4's steerable proxy, and beacons its presence over UDP.
//
// Grounded on original_source/starling/nexus.py's StarlingNexus. The
// XPUB/XSUB/PAIR primitives and ProxySteerable forwarding come from
// github.com/pebbe/zmq4, the library other_examples/zeromq-gyre (a Go port
// of czmq/zyre peer discovery) uses for the same socket family.
package nexus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/starling-mesh/starling/internal/lifecycle"
	"github.com/starling-mesh/starling/pkg/beacon"
)

// Well-known ports, per SPEC_FULL.md §6.
const (
	PubPort       = 8989
	SubPort       = 9898
	DiscoveryPort = 8899
	ObserverPort  = 9988
)

// DefaultHeartbeatInterval is the beacon cadence when none is supplied.
const DefaultHeartbeatInterval = 1 * time.Second

// Descriptor is the tuple learned from a beacon packet: where the nexus
// that sent it can be reached, and how to recognize it as unchanged.
type Descriptor struct {
	SourceAddr string
	SourcePort int
	PubPort    int
	SubPort    int
	Identifier string
}

// state is the nexus's own lifecycle state machine: Init -> Running ->
// Stopping -> Stopped.
type state int32

const (
	stateInit state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Stats is a point-in-time, in-process snapshot of relay activity. It is
// only reachable from code sharing this Nexus's memory (tests, or an
// embedding program that holds the *Nexus directly) — there is no wire
// exposure of it, so a separate process such as cmd/topics cannot observe
// it.
type Stats struct {
	HeartbeatsSent  uint64
	ObserverDropped uint64
}

// Nexus is the relay node described in SPEC_FULL.md §4.3.
type Nexus struct {
	identifier        string
	heartbeatInterval time.Duration
	echo              bool

	ctx  *zmq.Context
	xpub *zmq.Socket // subscriber-facing, bound to PubPort
	xsub *zmq.Socket // publisher-facing, bound to SubPort

	observerIn  *zmq.Socket // PAIR, bound to ObserverPort
	observerOut *zmq.Socket // PAIR, connected to ObserverPort

	control       *zmq.Socket // PAIR, bound to inproc control address
	controlAddr   string
	beacon        *beacon.Beacon
	log           *logrus.Entry
	state         atomic.Int32
	stopOnce      sync.Once
	releaseSignal func()

	heartbeatsSent  atomic.Uint64
	observerDropped atomic.Uint64

	stopped chan struct{}
}

// Option configures a Nexus at construction time.
type Option func(*Nexus)

// WithIdentifier overrides the generated 8-character identifier.
func WithIdentifier(id string) Option {
	return func(n *Nexus) { n.identifier = id }
}

// WithHeartbeatInterval overrides DefaultHeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(n *Nexus) { n.heartbeatInterval = d }
}

// WithEcho enables the observer tap: every forwarded frame is teed to a
// PAIR socket on ObserverPort and logged. Bad under high load, per
// original_source/starling/nexus.py's own CLI help text.
func WithEcho() Option {
	return func(n *Nexus) { n.echo = true }
}

// New binds the relay's sockets and beacon but does not yet start
// forwarding; call Run for that.
func New(opts ...Option) (*Nexus, error) {
	n := &Nexus{
		heartbeatInterval: DefaultHeartbeatInterval,
		controlAddr:       fmt.Sprintf("inproc://starling-nexus-control-%d", time.Now().UnixNano()),
		stopped:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.identifier == "" {
		n.identifier = uuid.NewString()[:8]
	}
	n.log = logrus.WithFields(logrus.Fields{"component": "nexus", "identifier": n.identifier})

	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("nexus: new context: %w", err)
	}
	n.ctx = ctx

	if n.xpub, err = n.bindSocket(zmq.XPUB, PubPort); err != nil {
		return nil, err
	}
	if n.xsub, err = n.bindSocket(zmq.XSUB, SubPort); err != nil {
		return nil, err
	}

	if n.control, err = ctx.NewSocket(zmq.PAIR); err != nil {
		return nil, fmt.Errorf("nexus: control socket: %w", err)
	}
	if err := n.control.Bind(n.controlAddr); err != nil {
		return nil, fmt.Errorf("nexus: bind control: %w", err)
	}

	if n.echo {
		if n.observerIn, err = ctx.NewSocket(zmq.PAIR); err != nil {
			return nil, fmt.Errorf("nexus: observer-in socket: %w", err)
		}
		if n.observerOut, err = ctx.NewSocket(zmq.PAIR); err != nil {
			return nil, fmt.Errorf("nexus: observer-out socket: %w", err)
		}
		_ = n.observerIn.SetLinger(0)
		_ = n.observerOut.SetLinger(0)
		_ = n.observerIn.SetSndhwm(1)
		_ = n.observerOut.SetRcvhwm(1)
		if err := n.observerIn.Bind(fmt.Sprintf("tcp://*:%d", ObserverPort)); err != nil {
			return nil, fmt.Errorf("nexus: bind observer: %w", err)
		}
		if err := n.observerOut.Connect(fmt.Sprintf("tcp://127.0.0.1:%d", ObserverPort)); err != nil {
			return nil, fmt.Errorf("nexus: connect observer: %w", err)
		}
	}

	b, err := beacon.New(DiscoveryPort)
	if err != nil {
		return nil, fmt.Errorf("nexus: beacon: %w", err)
	}
	n.beacon = b

	return n, nil
}

func (n *Nexus) bindSocket(t zmq.Type, port int) (*zmq.Socket, error) {
	soc, err := n.ctx.NewSocket(t)
	if err != nil {
		return nil, fmt.Errorf("nexus: new socket: %w", err)
	}
	if err := soc.Bind(fmt.Sprintf("tcp://*:%d", port)); err != nil {
		return nil, fmt.Errorf("nexus: bind port %d: %w", port, err)
	}
	return soc, nil
}

// Identifier returns the 8-character opaque tag this nexus announces.
func (n *Nexus) Identifier() string { return n.identifier }

// Stats returns a point-in-time snapshot of relay activity.
func (n *Nexus) Stats() Stats {
	return Stats{
		HeartbeatsSent:  n.heartbeatsSent.Load(),
		ObserverDropped: n.observerDropped.Load(),
	}
}

// Run transitions Init -> Running, starts the heartbeat, proxy, and
// (if enabled) observer goroutines, registers SIGINT/SIGTERM handlers
// that call Stop, and blocks until Stop is called (by a signal, by the
// caller, or by the embedding program).
func (n *Nexus) Run() error {
	if !n.state.CompareAndSwap(int32(stateInit), int32(stateRunning)) {
		return fmt.Errorf("nexus: Run called in state %d, expected Init", n.state.Load())
	}

	g, _ := errgroup.WithContext(context.Background())
	g.Go(n.heartbeatLoop)
	g.Go(n.proxyLoop)
	if n.echo {
		g.Go(n.observeLoop)
	}

	n.releaseSignal = lifecycle.NotifyStop(n.Stop)

	n.log.Info("nexus running")
	<-n.stopped
	_ = g.Wait()
	return nil
}

// Stop idempotently transitions the nexus to Stopping and, once the
// heartbeat, proxy, and observer goroutines have joined and every socket
// is closed, to Stopped.
func (n *Nexus) Stop() {
	n.stopOnce.Do(func() {
		n.state.Store(int32(stateStopping))
		n.log.Info("stopping nexus")

		_ = n.beacon.Close()

		ctrl, err := n.ctx.NewSocket(zmq.PAIR)
		if err == nil {
			if err := ctrl.Connect(n.controlAddr); err == nil {
				_, _ = ctrl.Send("TERMINATE", 0)
			}
			_ = ctrl.Close()
		}

		close(n.stopped)
		if n.releaseSignal != nil {
			n.releaseSignal()
		}

		_ = n.xpub.Close()
		_ = n.xsub.Close()
		_ = n.control.Close()
		if n.observerIn != nil {
			_ = n.observerIn.Close()
		}
		if n.observerOut != nil {
			_ = n.observerOut.Close()
		}
		_ = n.ctx.Term()

		n.state.Store(int32(stateStopped))
		n.log.Info("nexus stopped")
	})
}

func (n *Nexus) heartbeatLoop() error {
	ticker := time.NewTicker(n.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopped:
			return nil
		case <-ticker.C:
			msg := fmt.Sprintf("%d %d %s", PubPort, SubPort, n.identifier)
			n.beacon.Send(msg)
			n.heartbeatsSent.Add(1)
		}
	}
}

func (n *Nexus) proxyLoop() error {
	// ProxySteerable blocks until it receives "TERMINATE" on control, or
	// the context is terminated out from under it by Stop. Either path is
	// the normal shutdown signal for this worker.
	err := zmq.ProxySteerable(n.xsub, n.xpub, n.observerIn, n.control)
	if err != nil {
		n.log.WithError(err).Debug("proxy loop exited")
	}
	return nil
}

// observeLoop drains the observer tap and logs each forwarded frame at
// debug level. The PAIR pair is configured with HWM 1, so a slow reader
// drops frames inside zmq itself rather than blocking the proxy; this loop
// only counts its own receive timeouts as a rough liveness signal.
func (n *Nexus) observeLoop() error {
	_ = n.observerOut.SetRcvtimeo(500 * time.Millisecond)
	for {
		select {
		case <-n.stopped:
			return nil
		default:
		}
		msg, err := n.observerOut.Recv(0)
		if err != nil {
			n.observerDropped.Add(1)
			continue
		}
		n.log.WithField("frame", msg).Debug("observer tap")
	}
}
