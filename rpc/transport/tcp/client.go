package tcp

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/ValentinKolb/dTCP/rpc/transport/base"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"golang.org/x/sys/unix"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Resolve(endpoint string) (unix.Sockaddr, int, error) {
	return sock.ResolveTCP(endpoint)
}

func (c *clientConnector) UpgradeConnection(fd int, config common.ClientConfig) error {
	return upgrade(fd, config.Transport.TCPConf, config.Transport.SocketConf)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a TCP connect service with one slot per configured endpoint
func NewTCPClientTransport(config common.ClientConfig) (transport.IClientTransport, error) {
	cl, err := base.NewClient(&clientConnector{}, config)
	if err != nil {
		return nil, err
	}
	return cl, nil
}
