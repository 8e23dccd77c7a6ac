package subscriber

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starling-mesh/starling/pkg/topic"
	"github.com/starling-mesh/starling/pkg/wire"
)

func newTestSubscription(t *testing.T, pattern string, size int) *subscription {
	t.Helper()
	return &subscription{
		matcher: topic.Compile(pattern),
		queue:   make(chan wire.Message, size),
		stop:    make(chan struct{}),
	}
}

func TestFanOutDeliversOnlyMatchingSubscriptions(t *testing.T) {
	s := &Subscriber{subscriptions: map[string]*subscription{}}
	matching := newTestSubscription(t, "robot.*.battery", 4)
	other := newTestSubscription(t, "robot.*.temperature", 4)
	s.subscriptions["robot.*.battery"] = matching
	s.subscriptions["robot.*.temperature"] = other

	s.fanOut(wire.Message{Topic: "robot.alpha.battery", Payload: []byte("42")})

	require.Len(t, matching.queue, 1)
	require.Len(t, other.queue, 0)
}

func TestFanOutDropsOnFullQueue(t *testing.T) {
	s := &Subscriber{subscriptions: map[string]*subscription{}}
	sub := newTestSubscription(t, "#", 1)
	s.subscriptions["#"] = sub

	s.fanOut(wire.Message{Topic: "a.b", Payload: []byte("1")})
	s.fanOut(wire.Message{Topic: "a.b", Payload: []byte("2")})

	require.Len(t, sub.queue, 1)
	require.EqualValues(t, 1, sub.dropped.Load())
}

func TestIsLocalAddressRecognizesOwnInterfaces(t *testing.T) {
	addrs, err := net.InterfaceAddrs()
	require.NoError(t, err)
	require.NotEmpty(t, addrs)

	ipnet, ok := addrs[0].(*net.IPNet)
	require.True(t, ok)
	require.True(t, isLocalAddress(ipnet.IP.String()))
	require.False(t, isLocalAddress("203.0.113.42"))
}
