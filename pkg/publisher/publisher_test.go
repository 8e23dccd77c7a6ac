package publisher

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starling-mesh/starling/pkg/starlingerr"
)

func TestSendRejectsInvalidTopic(t *testing.T) {
	p := &Publisher{}
	err := p.Send("bad..topic", []byte("x"))
	require.Error(t, err)
	var invalid *starlingerr.InvalidTopic
	require.ErrorAs(t, err, &invalid)
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
