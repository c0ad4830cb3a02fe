package base

import (
	"context"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/codec"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"net"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

// --------------------------------------------------------------------------
// Loopback connectors
// --------------------------------------------------------------------------

type loopbackServer struct{}

func (loopbackServer) GetName() string { return "loopback" }

func (loopbackServer) Listen(config common.ServerConfig) (int, error) {
	sa, family, err := sock.ResolveTCP(config.Transport.Endpoint)
	if err != nil {
		return -1, err
	}
	return sock.Listen(sa, family, config.Transport.Backlog)
}

func (loopbackServer) UpgradeConnection(fd int, config common.ServerConfig) error {
	return sock.SetNoDelay(fd, true)
}

type loopbackClient struct{}

func (loopbackClient) GetName() string { return "loopback" }

func (loopbackClient) Resolve(endpoint string) (unix.Sockaddr, int, error) {
	return sock.ResolveTCP(endpoint)
}

func (loopbackClient) UpgradeConnection(fd int, config common.ClientConfig) error {
	return sock.SetNoDelay(fd, true)
}

// --------------------------------------------------------------------------
// Service runners
// --------------------------------------------------------------------------

func testEngineConf() common.EngineConf {
	return common.EngineConf{
		MaxQueueDepth:  64,
		PollTimeout:    time.Millisecond,
		ChannelSize:    256,
		DeliverRetries: 4,
		DeliverBackoff: 10 * time.Microsecond,
	}
}

// startServer runs a listen service until the test ends
func startServer(t *testing.T, mutate func(*common.ServerConfig)) *Server {
	t.Helper()
	config := common.ServerConfig{
		Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"},
		Engine:    testEngineConf(),
	}
	if mutate != nil {
		mutate(&config)
	}

	srv, err := NewServer(loopbackServer{}, config)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error { return srv.Run(context.Background()) })
	t.Cleanup(func() {
		srv.Stop()
		require.NoError(t, g.Wait())
	})
	return srv
}

// recordingClient logs the time of every resolve, which starts each connect attempt
type recordingClient struct {
	loopbackClient
	log *attemptLog
}

func (r recordingClient) Resolve(endpoint string) (unix.Sockaddr, int, error) {
	r.log.add(endpoint, time.Now())
	return r.loopbackClient.Resolve(endpoint)
}

// startClient runs a connect service until the test ends, a nil connector
// selects loopbackClient
func startClient(t *testing.T, endpoints []string, connector IClientConnector) *Client {
	t.Helper()
	config := common.ClientConfig{
		Transport:         common.ClientTransportConfig{Endpoints: endpoints},
		Engine:            testEngineConf(),
		ConnectTimeout:    time.Second,
		ReconnectInterval: 50 * time.Millisecond,
	}

	if connector == nil {
		connector = loopbackClient{}
	}
	cl, err := NewClient(connector, config)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error { return cl.Run(context.Background()) })
	t.Cleanup(func() {
		cl.Stop()
		require.NoError(t, g.Wait())
	})
	return cl
}

// next returns the next inbound message or fails the test
func next(t *testing.T, inbound <-chan common.Message) common.Message {
	t.Helper()
	select {
	case msg, ok := <-inbound:
		require.True(t, ok, "inbound channel closed")
		return msg
	case <-time.After(testTimeout):
		t.Fatalf("Timeout waiting for an inbound message")
	}
	return common.Message{}
}

// expectEvent returns the next inbound message and checks it is the given event
func expectEvent(t *testing.T, inbound <-chan common.Message, event common.EventKind) common.Message {
	t.Helper()
	msg := next(t, inbound)
	require.Equal(t, common.KindExceptional, msg.Kind, "expected %s, got %s", event, msg)
	require.Equal(t, event, msg.Event, "unexpected event in %s", msg)
	return msg
}

// expectNothing checks that no message arrives within d
func expectNothing(t *testing.T, inbound <-chan common.Message, d time.Duration) {
	t.Helper()
	select {
	case msg := <-inbound:
		t.Fatalf("Expected no message, got %s", msg)
	case <-time.After(d):
	}
}

// --------------------------------------------------------------------------
// Blocking peer speaking the frame protocol
// --------------------------------------------------------------------------

type peer struct {
	t      *testing.T
	conn   net.Conn
	writer codec.Writer
	reader *codec.Reader
	queue  []common.Envelope
}

func dial(t *testing.T, addr string) *peer {
	t.Helper()
	c, err := net.DialTimeout("tcp", addr, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return &peer{t: t, conn: c, reader: codec.NewReader(0)}
}

func (p *peer) send(env common.Envelope) {
	p.t.Helper()
	res, err := p.writer.Write(p.conn, &env)
	require.NoError(p.t, err)
	require.Equal(p.t, codec.Finish, res)
}

func (p *peer) recv() common.Envelope {
	p.t.Helper()
	buf := make([]byte, 64*1024)
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	for len(p.queue) == 0 {
		n, err := p.conn.Read(buf)
		require.NoError(p.t, err)
		require.NoError(p.t, p.reader.Feed(buf[:n], func(e common.Envelope) { p.queue = append(p.queue, e) }))
	}
	env := p.queue[0]
	p.queue = p.queue[1:]
	return env
}

// expectClosed checks that the other side closes the connection
func (p *peer) expectClosed() {
	p.t.Helper()
	buf := make([]byte, 1024)
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	for {
		if _, err := p.conn.Read(buf); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				p.t.Fatalf("Timeout waiting for the connection to close")
			}
			return
		}
	}
}
