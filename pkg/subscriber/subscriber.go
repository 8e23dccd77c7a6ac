// Package subscriber implements the subscribing endpoint: a SUB socket
// that discovers nexus relays over UDP beacons, connects to each one's
// subscriber-facing port, and fans incoming messages out to per-pattern
// bounded queues dispatched to caller-supplied callbacks.
//
// Grounded on original_source/starling/subscription.py's NexusSubscriber.
package subscriber

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	zmq "github.com/pebbe/zmq4"
	"github.com/sirupsen/logrus"

	"github.com/starling-mesh/starling/internal/lifecycle"
	"github.com/starling-mesh/starling/pkg/beacon"
	"github.com/starling-mesh/starling/pkg/nexus"
	"github.com/starling-mesh/starling/pkg/starlingerr"
	"github.com/starling-mesh/starling/pkg/topic"
	"github.com/starling-mesh/starling/pkg/wire"
)

// DefaultQueueSize is the bounded FIFO capacity per subscription
// (original_source's MEDIUM queue size).
const DefaultQueueSize = 10_000

// Callback receives one delivered message for a subscription.
type Callback func(wire.Message)

// subscription is one pattern's dispatch pipeline: a matcher, a bounded
// queue, the consuming goroutine, and a drop counter for queue overflow.
type subscription struct {
	matcher  *topic.Matcher
	queue    chan wire.Message
	callback Callback
	dropped  atomic.Uint64
	stop     chan struct{}
	wg       sync.WaitGroup
}

// Subscriber is a SUB endpoint that attaches to every nexus it discovers
// and dispatches received messages to registered pattern subscriptions.
type Subscriber struct {
	ctx *zmq.Context
	sub *zmq.Socket
	bcn *beacon.Beacon
	log *logrus.Entry

	queueSize int

	mu            sync.Mutex
	connected     map[string]struct{}
	subscriptions map[string]*subscription
	upstream      map[string]int // upstream zmq prefix -> reference count

	exit     *lifecycle.Exit
	release  func()
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Subscriber at construction time.
type Option func(*Subscriber)

// WithQueueSize overrides DefaultQueueSize for every subscription created
// after the option is applied.
func WithQueueSize(n int) Option {
	return func(s *Subscriber) { s.queueSize = n }
}

// New creates a subscriber listening for nexus beacons on
// nexus.DiscoveryPort and starts its receive loop.
func New(opts ...Option) (*Subscriber, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("subscriber: new context: %w", err)
	}
	sub, err := ctx.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("subscriber: new socket: %w", err)
	}

	b, err := beacon.New(nexus.DiscoveryPort)
	if err != nil {
		return nil, fmt.Errorf("subscriber: beacon: %w", err)
	}

	s := &Subscriber{
		ctx:           ctx,
		sub:           sub,
		bcn:           b,
		log:           logrus.WithField("component", "subscriber"),
		queueSize:     DefaultQueueSize,
		connected:     make(map[string]struct{}),
		subscriptions: make(map[string]*subscription),
		upstream:      make(map[string]int),
		exit:          lifecycle.NewExit(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.release = lifecycle.NotifyStop(s.Stop)

	s.wg.Add(2)
	go s.discoverLoop()
	go s.recvLoop()

	return s, nil
}

func (s *Subscriber) discoverLoop() {
	defer s.wg.Done()
	for {
		if s.exit.Set() {
			return
		}
		_ = s.bcn.SetReadDeadline(time.Now().Add(1 * time.Second))
		msg, addr, err := s.bcn.Recv()
		if err != nil {
			continue
		}
		s.handleBeacon(msg, addr)
	}
}

func (s *Subscriber) handleBeacon(msg string, addr *net.UDPAddr) {
	fields := strings.Fields(msg)
	if len(fields) != 3 {
		return
	}
	pubPort, err := strconv.Atoi(fields[0])
	if err != nil {
		return
	}

	source := addr.IP.String()
	if isLocalAddress(source) {
		source = "127.0.0.1"
	}
	key := fmt.Sprintf("%s:%s", source, fields[2])

	s.mu.Lock()
	if _, ok := s.connected[key]; ok {
		s.mu.Unlock()
		return
	}
	s.connected[key] = struct{}{}
	s.mu.Unlock()

	dial := fmt.Sprintf("tcp://%s:%d", source, pubPort)
	if err := s.sub.Connect(dial); err != nil {
		s.log.WithError(err).WithField("nexus", dial).Warn("failed to connect to nexus")
		return
	}
	s.log.WithField("nexus", dial).Info("connected to nexus")
}

// Subscribe registers a pattern (a concrete topic or one using `*`/`#`
// wildcards per spec.md §3) and returns once the upstream zmq-level prefix
// subscription has been issued. Messages matching pattern are delivered to
// callback from a dedicated goroutine, in arrival order, via a bounded
// queue of s.queueSize; when full, new messages for that pattern are
// dropped and counted rather than blocking the receive loop.
func (s *Subscriber) Subscribe(pattern string, callback Callback) error {
	if !topic.Validate(pattern) {
		return &starlingerr.InvalidTopic{Topic: pattern}
	}

	m := topic.Compile(pattern)
	sub := &subscription{
		matcher:  m,
		queue:    make(chan wire.Message, s.queueSize),
		callback: callback,
		stop:     make(chan struct{}),
	}

	prefix := topic.UpstreamPrefix(pattern)

	s.mu.Lock()
	if _, exists := s.subscriptions[pattern]; exists {
		s.mu.Unlock()
		return fmt.Errorf("subscriber: already subscribed to %q", pattern)
	}
	s.subscriptions[pattern] = sub
	s.upstream[prefix]++
	refs := s.upstream[prefix]
	s.mu.Unlock()

	if refs == 1 {
		if err := s.sub.SetSubscribe(prefix); err != nil {
			return &starlingerr.TransportFault{Err: err}
		}
	}

	sub.wg.Add(1)
	go s.dispatchLoop(sub)

	return nil
}

// Unsubscribe stops delivery for pattern and releases its queue. If no
// other subscription shares its upstream prefix, the zmq-level
// subscription is also withdrawn.
func (s *Subscriber) Unsubscribe(pattern string) error {
	s.mu.Lock()
	sub, ok := s.subscriptions[pattern]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("subscriber: no subscription for %q", pattern)
	}
	delete(s.subscriptions, pattern)

	prefix := topic.UpstreamPrefix(pattern)
	s.upstream[prefix]--
	last := s.upstream[prefix] == 0
	if last {
		delete(s.upstream, prefix)
	}
	s.mu.Unlock()

	if last {
		_ = s.sub.SetUnsubscribe(prefix)
	}

	close(sub.stop)
	sub.wg.Wait()
	return nil
}

// ConnectedCount reports how many distinct nexus relays this subscriber
// has connected to so far.
func (s *Subscriber) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connected)
}

// DropCount reports how many messages have been dropped for pattern due to
// queue overflow.
func (s *Subscriber) DropCount(pattern string) uint64 {
	s.mu.Lock()
	sub, ok := s.subscriptions[pattern]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return sub.dropped.Load()
}

func (s *Subscriber) dispatchLoop(sub *subscription) {
	defer sub.wg.Done()
	for {
		select {
		case <-sub.stop:
			return
		case m := <-sub.queue:
			sub.callback(m)
		}
	}
}

// recvLoop polls the SUB socket and dispatches each message to every
// subscription whose matcher accepts its topic, mirroring
// subscription.py's direct-lookup-then-wildcard-fanout dispatch.
func (s *Subscriber) recvLoop() {
	defer s.wg.Done()
	poller := zmq.NewPoller()
	poller.Add(s.sub, zmq.POLLIN)

	for {
		if s.exit.Set() {
			return
		}
		sockets, err := poller.Poll(500 * time.Millisecond)
		if err != nil || len(sockets) == 0 {
			continue
		}

		frames, err := s.sub.RecvMessageBytes(0)
		if err != nil {
			continue
		}
		m, ok := wire.FromFrames(frames)
		if !ok {
			continue
		}
		s.fanOut(m)
	}
}

func (s *Subscriber) fanOut(m wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if !sub.matcher.Match(m.Topic) {
			continue
		}
		select {
		case sub.queue <- m:
		default:
			sub.dropped.Add(1)
		}
	}
}

// isLocalAddress reports whether ip belongs to one of this host's own
// interfaces.
func isLocalAddress(ip string) bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.String() == ip {
			return true
		}
	}
	return false
}

// Stop idempotently shuts the subscriber down: discovery and receive
// goroutines exit, every subscription's dispatch goroutine joins, and the
// beacon and zmq sockets close.
func (s *Subscriber) Stop() {
	s.stopOnce.Do(func() {
		s.exit.Trigger()
		_ = s.bcn.Close()
		s.wg.Wait()

		s.mu.Lock()
		subs := make([]*subscription, 0, len(s.subscriptions))
		for _, sub := range s.subscriptions {
			subs = append(subs, sub)
		}
		s.mu.Unlock()
		for _, sub := range subs {
			close(sub.stop)
			sub.wg.Wait()
		}

		if s.release != nil {
			s.release()
		}
		_ = s.sub.Close()
		_ = s.ctx.Term()
	})
}
