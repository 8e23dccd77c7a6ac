// Package publisher implements the publishing endpoint: a PUB socket that
// discovers nexus relays over UDP beacons and connects to each one's
// publisher-facing port.
//
// Grounded on original_source/starling/publication.py's NexusPublisher.
package publisher

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
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

// discovered tracks one nexus this publisher has connected to.
type discovered struct {
	addr string // dial address used for Connect, after own-IP rewriting
}

// Publisher is a PUB endpoint that attaches to every nexus it discovers.
type Publisher struct {
	ctx  *zmq.Context
	pub  *zmq.Socket
	bcn  *beacon.Beacon
	exit *lifecycle.Exit
	log  *logrus.Entry

	mu        sync.Mutex
	connected map[string]discovered // keyed by source beacon address

	release  func()
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a publisher whose PUB socket is not bound locally but
// connects out to each discovered nexus, and which listens for nexus
// beacons on nexus.DiscoveryPort.
func New() (*Publisher, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("publisher: new context: %w", err)
	}
	pub, err := ctx.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("publisher: new socket: %w", err)
	}

	b, err := beacon.New(nexus.DiscoveryPort)
	if err != nil {
		return nil, fmt.Errorf("publisher: beacon: %w", err)
	}

	p := &Publisher{
		ctx:       ctx,
		pub:       pub,
		bcn:       b,
		exit:      lifecycle.NewExit(),
		log:       logrus.WithField("component", "publisher"),
		connected: make(map[string]discovered),
	}

	p.release = lifecycle.NotifyStop(p.Stop)
	p.wg.Add(1)
	go p.discoverLoop()

	return p, nil
}

// discoverLoop listens for nexus heartbeats and connects the PUB socket to
// any newly discovered relay's publisher-facing port, per
// original_source/starling/publication.py's _connect_to_nexus.
func (p *Publisher) discoverLoop() {
	defer p.wg.Done()
	for {
		if p.exit.Set() {
			return
		}
		_ = p.bcn.SetReadDeadline(time.Now().Add(1 * time.Second))
		msg, addr, err := p.bcn.Recv()
		if err != nil {
			continue
		}
		p.handleBeacon(msg, addr)
	}
}

func (p *Publisher) handleBeacon(msg string, addr *net.UDPAddr) {
	fields := strings.Fields(msg)
	if len(fields) != 3 {
		return
	}
	subPort, err := strconv.Atoi(fields[1])
	if err != nil {
		return
	}

	source := addr.IP.String()
	if isLocalAddress(source) {
		source = "127.0.0.1"
	}
	key := fmt.Sprintf("%s:%s", source, fields[2])

	p.mu.Lock()
	if _, ok := p.connected[key]; ok {
		p.mu.Unlock()
		return
	}
	dial := fmt.Sprintf("tcp://%s:%d", source, subPort)
	p.connected[key] = discovered{addr: dial}
	p.mu.Unlock()

	if err := p.pub.Connect(dial); err != nil {
		p.log.WithError(err).WithField("nexus", dial).Warn("failed to connect to nexus")
		return
	}
	p.log.WithField("nexus", dial).Info("connected to nexus")
}

// isLocalAddress reports whether ip belongs to one of this host's own
// interfaces, mirroring publication.py's rewrite of self-sourced beacons to
// the loopback address.
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

// Send validates topic and publishes payload to every connected nexus.
func (p *Publisher) Send(t string, payload []byte) error {
	if !topic.Validate(t) {
		return &starlingerr.InvalidTopic{Topic: t}
	}
	m := wire.Message{Topic: t, Payload: payload}
	frames := m.Frames()
	_, err := p.pub.SendMessage(frames[0], frames[1])
	if err != nil {
		return &starlingerr.TransportFault{Err: err}
	}
	return nil
}

// Stop idempotently shuts the publisher down: the discovery goroutine
// exits, the beacon socket closes, and the PUB socket and context are torn
// down.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		p.exit.Trigger()
		_ = p.bcn.Close()
		p.wg.Wait()
		if p.release != nil {
			p.release()
		}
		_ = p.pub.Close()
		_ = p.ctx.Term()
	})
}
