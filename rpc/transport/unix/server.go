package unix

import (
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/ValentinKolb/dTCP/rpc/transport/base"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"github.com/lni/dragonboat/v4/logger"
	"os"
)

var Logger = logger.GetLogger("transport/unix")

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (int, error) {
	socketPath := config.Transport.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return -1, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	sa, family, err := sock.ResolveUnix(socketPath)
	if err != nil {
		return -1, err
	}

	fd, err := sock.Listen(sa, family, config.Transport.Backlog)
	if err != nil {
		return -1, fmt.Errorf("failed to create Unix socket: %w", err)
	}
	Logger.Debugf("listening on %s", socketPath)
	return fd, nil
}

func (c *serverConnector) UpgradeConnection(fd int, config common.ServerConfig) error {
	return sock.SetBuffers(fd, config.Transport.ReadBufferSize, config.Transport.WriteBufferSize)
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixServerTransport creates a Unix socket listen service on config.Transport.Endpoint
func NewUnixServerTransport(config common.ServerConfig) (transport.IServerTransport, error) {
	srv, err := base.NewServer(&serverConnector{}, config)
	if err != nil {
		return nil, err
	}
	return srv, nil
}
