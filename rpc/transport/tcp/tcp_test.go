package tcp

import (
	"context"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
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

func TestTCPRoundTrip(t *testing.T) {
	for _, endpoint := range []string{"127.0.0.1:0", "[::1]:0"} {
		t.Run(endpoint, func(t *testing.T) {
			srv, err := NewTCPServerTransport(common.ServerConfig{
				Transport: common.ServerTransportConfig{
					Endpoint:   endpoint,
					SocketConf: common.SocketConf{ReadBufferSize: 128 * 1024, WriteBufferSize: 128 * 1024},
					TCPConf:    common.TCPConf{TCPNoDelay: true},
				},
			})
			if err != nil && endpoint == "[::1]:0" {
				t.Skipf("IPv6 loopback unavailable: %v", err)
			}
			require.NoError(t, err)

			cl, err := NewTCPClientTransport(common.ClientConfig{
				Transport: common.ClientTransportConfig{
					Endpoints: []string{srv.Addr()},
					TCPConf:   common.TCPConf{TCPNoDelay: true},
				},
				ReconnectInterval: 20 * time.Millisecond,
			})
			require.NoError(t, err)
			require.Equal(t, 1, cl.Endpoints())

			ctx, cancel := context.WithCancel(context.Background())
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(ctx) })
			g.Go(func() error { return cl.Run(ctx) })
			defer func() {
				cancel()
				require.NoError(t, g.Wait())
			}()

			require.Equal(t, common.EventNewConnection, await(t, cl.Inbound()).Event)
			id := await(t, srv.Inbound()).Conn

			body := make([]byte, 256*1024)
			for i := range body {
				body[i] = byte(i)
			}
			cl.Outbound() <- common.NewNormalMessage(0, common.Envelope{Correlation: 3, Body: body})

			msg := await(t, srv.Inbound())
			require.Equal(t, id, msg.Conn)
			require.Equal(t, body, msg.Envelope.Body)

			srv.Outbound() <- msg
			reply := await(t, cl.Inbound())
			require.Equal(t, common.ConnID(0), reply.Conn)
			require.Equal(t, uint64(3), reply.Envelope.Correlation)
			require.Equal(t, body, reply.Envelope.Body)
		})
	}
}

func TestTCPListenFailure(t *testing.T) {
	_, err := NewTCPServerTransport(common.ServerConfig{
		Transport: common.ServerTransportConfig{Endpoint: "not-an-address"},
	})
	require.Error(t, err)
}
