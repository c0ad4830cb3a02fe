package transport

import (
	"context"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/base"
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Common service surface
// --------------------------------------------------------------------------

// IService is what both reactor services expose to business logic
type IService interface {
	// Run runs the event loop on the calling goroutine until Stop is called,
	// ctx is done or the reactor fails
	Run(ctx context.Context) error
	// Stop asks the loop to return, it is checked once per loop iteration
	Stop()
	// Inbound delivers decoded frames and exceptional messages, closed when Run returns
	Inbound() <-chan common.Message
	// Outbound takes messages to write
	Outbound() chan<- common.Message
	// Stats returns a snapshot of the service counters
	Stats() base.Stats
	// Metrics returns the metric set of the service
	Metrics() *metrics.Set
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerTransport is the listen side service
type IServerTransport interface {
	IService
	// Addr returns the bound listen address
	Addr() string
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientTransport is the connect side service, connection ids are endpoint indexes
type IClientTransport interface {
	IService
	// Endpoints returns the number of endpoint slots
	Endpoints() int
}

var (
	_ IServerTransport = (*base.Server)(nil)
	_ IClientTransport = (*base.Client)(nil)
)
