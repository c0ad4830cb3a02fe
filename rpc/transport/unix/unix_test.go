package unix

import (
	"context"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func await(t *testing.T, ch <-chan common.Message) common.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for a message")
	}
	return common.Message{}
}

func TestUnixRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtcp.sock")

	// a stale file from an earlier run is replaced
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	srv, err := NewUnixServerTransport(common.ServerConfig{
		Transport: common.ServerTransportConfig{Endpoint: path},
	})
	require.NoError(t, err)
	require.Equal(t, path, srv.Addr())

	cl, err := NewUnixClientTransport(common.ClientConfig{
		Transport:         common.ClientTransportConfig{Endpoints: []string{path}},
		ReconnectInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error { return cl.Run(ctx) })
	defer func() {
		cancel()
		require.NoError(t, g.Wait())
	}()

	require.Equal(t, common.EventNewConnection, await(t, cl.Inbound()).Event)
	require.Equal(t, common.EventNewConnection, await(t, srv.Inbound()).Event)

	env := common.Envelope{Correlation: 11, ProtocolID: 2, Body: []byte("over a unix socket")}
	cl.Outbound() <- common.NewNormalMessage(0, env)
	msg := await(t, srv.Inbound())
	require.Equal(t, env, msg.Envelope)

	srv.Outbound() <- msg
	require.Equal(t, env, await(t, cl.Inbound()).Envelope)
}
