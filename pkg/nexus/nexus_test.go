package nexus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Binding live zmq sockets and a UDP beacon in a test sandbox is
// environment-dependent, so most of these tests exercise the parts of the
// nexus that don't require a reachable network stack: option application
// and the zero-valued Stats. The idempotent-Stop test needs New to bind its
// sockets and skips when that fails.

func TestWithIdentifierOverridesGenerated(t *testing.T) {
	n := &Nexus{}
	WithIdentifier("abcd1234")(n)
	require.Equal(t, "abcd1234", n.identifier)
}

func TestWithHeartbeatIntervalOverridesDefault(t *testing.T) {
	n := &Nexus{heartbeatInterval: DefaultHeartbeatInterval}
	WithHeartbeatInterval(250 * time.Millisecond)(n)
	require.Equal(t, 250*time.Millisecond, n.heartbeatInterval)
}

func TestStatsStartAtZero(t *testing.T) {
	n := &Nexus{}
	stats := n.Stats()
	require.Zero(t, stats.HeartbeatsSent)
	require.Zero(t, stats.ObserverDropped)
}

func TestStopIsIdempotent(t *testing.T) {
	n, err := New(WithIdentifier("test0001"))
	if err != nil {
		t.Skipf("skipping: nexus requires a live zmq context in this environment: %v", err)
	}
	n.Stop()
	require.NotPanics(t, n.Stop, "Stop must tolerate being called more than once")
}
