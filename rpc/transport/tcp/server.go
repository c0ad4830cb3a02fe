package tcp

import (
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/ValentinKolb/dTCP/rpc/transport/base"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/tcp")

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (int, error) {
	sa, family, err := sock.ResolveTCP(config.Transport.Endpoint)
	if err != nil {
		return -1, err
	}

	fd, err := sock.Listen(sa, family, config.Transport.Backlog)
	if err != nil {
		return -1, fmt.Errorf("failed to create TCP socket: %w", err)
	}
	return fd, nil
}

// UpgradeConnection applies TCPConf and SocketConf to an accepted connection
func (c *serverConnector) UpgradeConnection(fd int, config common.ServerConfig) error {
	return upgrade(fd, config.Transport.TCPConf, config.Transport.SocketConf)
}

// upgrade applies the TCP options shared by both sides
func upgrade(fd int, tcpConf common.TCPConf, socketConf common.SocketConf) error {
	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := sock.SetNoDelay(fd, tcpConf.TCPNoDelay); err != nil {
		return err
	}

	if err := sock.SetBuffers(fd, socketConf.ReadBufferSize, socketConf.WriteBufferSize); err != nil {
		Logger.Debugf("socket buffers of fd %d: %v", fd, err)
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a TCP listen service bound to config.Transport.Endpoint
func NewTCPServerTransport(config common.ServerConfig) (transport.IServerTransport, error) {
	srv, err := base.NewServer(&serverConnector{}, config)
	if err != nil {
		return nil, err
	}
	return srv, nil
}
