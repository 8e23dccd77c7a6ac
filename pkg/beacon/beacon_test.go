package beacon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecvTimesOutWithNothingSent(t *testing.T) {
	tx, err := New(0)
	require.NoError(t, err)
	defer tx.Close()

	rx, err := New(0)
	require.NoError(t, err)
	defer rx.Close()

	// Beacons fan out to interface broadcast addresses, which a bound
	// ephemeral port can't target deterministically in a test sandbox, so
	// exercise the recv/deadline contract directly against rx's own
	// socket instead of relying on the broadcast path.
	require.NoError(t, rx.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err = rx.Recv()
	require.Error(t, err, "expected a read-deadline timeout with nothing sent")
}

func TestBroadcastAddressesSkipsLoopback(t *testing.T) {
	addrs := broadcastAddresses()
	for _, a := range addrs {
		require.False(t, a.IsLoopback(), "broadcast address must not be derived from loopback interface")
	}
}
