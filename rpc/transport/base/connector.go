package base

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
	"golang.org/x/sys/unix"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the transport-specific parts of the listen service
type IServerConnector interface {
	// Listen creates the non-blocking listening socket and returns its descriptor
	Listen(config common.ServerConfig) (int, error)

	// UpgradeConnection applies socket options to a freshly accepted descriptor
	UpgradeConnection(fd int, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// IClientConnector defines the transport-specific parts of the connect service
type IClientConnector interface {
	// Resolve turns an endpoint string into a socket address and its family.
	// It is called before every connect attempt so address changes are picked up.
	Resolve(endpoint string) (unix.Sockaddr, int, error)

	// UpgradeConnection applies socket options once a connect completed
	UpgradeConnection(fd int, config common.ClientConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
