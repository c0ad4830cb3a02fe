package unix

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport"
	"github.com/ValentinKolb/dTCP/rpc/transport/base"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	sys "golang.org/x/sys/unix"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Resolve(endpoint string) (sys.Sockaddr, int, error) {
	return sock.ResolveUnix(endpoint)
}

func (c *clientConnector) UpgradeConnection(fd int, config common.ClientConfig) error {
	return sock.SetBuffers(fd, config.Transport.ReadBufferSize, config.Transport.WriteBufferSize)
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a Unix socket connect service, endpoints are socket paths
func NewUnixClientTransport(config common.ClientConfig) (transport.IClientTransport, error) {
	cl, err := base.NewClient(&clientConnector{}, config)
	if err != nil {
		return nil, err
	}
	return cl, nil
}
