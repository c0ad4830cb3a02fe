package base

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/codec"
	"github.com/ValentinKolb/dTCP/rpc/transport/reactor"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
	"testing"
)

// newTestConn wires a conn to one end of a socket pair, the other end is returned
func newTestConn(t *testing.T, conf common.EngineConf) (*conn, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	for _, fd := range fds {
		require.NoError(t, unix.SetNonblock(fd, true))
	}
	require.NoError(t, sock.SetBuffers(fds[0], 4096, 4096))

	poller, err := reactor.New(8)
	require.NoError(t, err)

	stats := newEngineStats(metrics.NewSet(), "test", "test")
	c := newConn(fds[0], poller, conf, &stats)
	c.id = common.MakeConnID(1, 0)
	c.key = uint64(c.id)
	require.NoError(t, poller.Register(c.key, c.fd, reactor.InterestRead))
	c.interest = reactor.InterestRead

	t.Cleanup(func() {
		poller.Close()
		sock.Close(fds[0])
		sock.Close(fds[1])
	})
	return c, fds[1]
}

func TestEnqueueWriteThrough(t *testing.T) {
	c, peer := newTestConn(t, common.EngineConf{MaxQueueDepth: 4, MaxMessageSize: 1024})

	env := common.Envelope{Correlation: 9, ProtocolID: 2, Body: []byte("hi")}
	require.NoError(t, c.enqueue(env))

	// the frame went out without waiting for a writable event
	require.Equal(t, 0, c.queued())
	require.Equal(t, reactor.InterestRead, c.interest)

	buf := make([]byte, 64)
	n, err := sock.Read(peer, buf)
	require.NoError(t, err)

	var got []common.Envelope
	r := codec.NewReader(0)
	require.NoError(t, r.Feed(buf[:n], func(e common.Envelope) { got = append(got, e) }))
	require.Len(t, got, 1)
	require.Equal(t, env.Body, got[0].Body)
	require.Equal(t, env.Correlation, got[0].Correlation)
}

func TestEnqueueBackpressure(t *testing.T) {
	const depth = 4
	c, peer := newTestConn(t, common.EngineConf{MaxQueueDepth: depth, MaxMessageSize: codec.MaxBodySize})

	body := make([]byte, 32*1024)
	accepted := 0
	rejected := 0
	for i := 0; i < 1000 && rejected < 10; i++ {
		err := c.enqueue(common.Envelope{Correlation: uint64(i), Body: body})
		switch err {
		case nil:
			accepted++
		case errQueueFull:
			rejected++
		default:
			t.Fatalf("enqueue failed: %v", err)
		}
		require.LessOrEqual(t, c.queued(), depth, "queue exceeded its depth")
	}

	require.Equal(t, 10, rejected, "excess frames must be rejected")
	require.Equal(t, depth, c.queued())
	require.Equal(t, reactor.InterestReadWrite, c.interest, "a full socket must ask for writability")

	// read everything on the peer side while the connection drains
	r := codec.NewReader(0)
	decoded := 0
	buf := make([]byte, 64*1024)
	for i := 0; i < 100000 && decoded < accepted; i++ {
		n, err := sock.Read(peer, buf)
		if err != nil && !sock.IsWouldBlock(err) {
			t.Fatalf("peer read failed: %v", err)
		}
		if n > 0 {
			require.NoError(t, r.Feed(buf[:n], func(common.Envelope) { decoded++ }))
		}
		require.NoError(t, c.drain())
	}

	require.Equal(t, accepted, decoded)
	require.Equal(t, 0, c.queued())
	require.Equal(t, reactor.InterestRead, c.interest, "an empty queue must drop write interest")
	require.Equal(t, uint64(accepted), c.msgsOut)
}

func TestEnqueueTooLarge(t *testing.T) {
	c, _ := newTestConn(t, common.EngineConf{MaxQueueDepth: 4, MaxMessageSize: 8})

	err := c.enqueue(common.Envelope{Body: make([]byte, 9)})
	require.ErrorIs(t, err, errTooLarge)
	require.Equal(t, 0, c.queued())
}

func TestConnReadCountsBytes(t *testing.T) {
	c, peer := newTestConn(t, common.EngineConf{MaxQueueDepth: 4, MaxMessageSize: 1024})

	_, err := sock.Write(peer, make([]byte, 100))
	require.NoError(t, err)

	buf := make([]byte, 64)
	total := 0
	for {
		n, err := c.Read(buf)
		total += n
		if sock.IsWouldBlock(err) {
			break
		}
		require.NoError(t, err)
	}
	require.Equal(t, 100, total)
	require.Equal(t, uint64(100), c.bytesIn)
	require.Equal(t, uint64(100), c.stats.bytesIn.Get())
}
