package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Defaults
// --------------------------------------------------------------------------

const (
	DefaultMaxConnections    = 1024
	DefaultMaxQueueDepth     = 1024
	DefaultChannelSize       = 4096
	DefaultBatchSize         = 256
	DefaultPollTimeout       = 1 * time.Millisecond
	DefaultConnectTimeout    = 3 * time.Second
	DefaultReconnectInterval = 1 * time.Second
	DefaultDeliverRetries    = 16
	DefaultDeliverBackoff    = 50 * time.Microsecond

	// maxWireBodySize mirrors codec.MaxBodySize (20 bit length field)
	maxWireBodySize = 1<<20 - 1
)

// --------------------------------------------------------------------------
// Shared socket / engine configuration
// --------------------------------------------------------------------------

// SocketConf holds kernel socket buffer sizes (0 keeps the OS default)
type SocketConf struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay bool
}

// EngineConf holds the knobs of one reactor loop
type EngineConf struct {
	// MaxMessageSize caps the body of a single message in both directions
	MaxMessageSize int
	// MaxQueueDepth caps the outbound FIFO of a single connection
	MaxQueueDepth int
	// PollTimeout is the reactor wait timeout after an idle iteration
	PollTimeout time.Duration
	// ChannelSize is the capacity of the inbound and outbound channels
	ChannelSize int
	// BatchSize bounds the outbound messages taken per iteration
	BatchSize int
	// DeliverRetries and DeliverBackoff bound the non-blocking delivery attempts
	// on a full inbound channel before the loop falls back to a blocking send
	DeliverRetries int
	DeliverBackoff time.Duration
}

// validate fills zero values with defaults and rejects impossible values
func (c *EngineConf) validate() error {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = maxWireBodySize
	}
	if c.MaxMessageSize < 0 || c.MaxMessageSize > maxWireBodySize {
		return fmt.Errorf("max message size must be in [1, %d], got %d", maxWireBodySize, c.MaxMessageSize)
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxQueueDepth < 0 {
		return fmt.Errorf("max queue depth must be positive, got %d", c.MaxQueueDepth)
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.ChannelSize <= 0 {
		c.ChannelSize = DefaultChannelSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DeliverRetries <= 0 {
		c.DeliverRetries = DefaultDeliverRetries
	}
	if c.DeliverBackoff <= 0 {
		c.DeliverBackoff = DefaultDeliverBackoff
	}
	return nil
}

// --------------------------------------------------------------------------
// Listen service configuration struct
// --------------------------------------------------------------------------

// ServerTransportConfig holds the socket level settings of the listen side
type ServerTransportConfig struct {
	// Endpoint is the bind address (host:port for tcp, a path for unix)
	Endpoint string
	// Backlog is passed to listen(2), 0 means SOMAXCONN
	Backlog int
	SocketConf
	TCPConf
}

// ServerConfig configures one listen service
type ServerConfig struct {
	Transport ServerTransportConfig
	Engine    EngineConf

	// MaxConnections is the capacity of the connection registry
	MaxConnections int

	// Logging configuration
	LogLevel string
}

// Validate fills defaults and checks the configuration
func (c *ServerConfig) Validate() error {
	if c.Transport.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxConnections < 0 || c.MaxConnections > math.MaxInt32 {
		return fmt.Errorf("max connections out of range: %d", c.MaxConnections)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c.Engine.validate()
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Listen Service")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Backlog", strconv.Itoa(c.Transport.Backlog))
	addField("Max Connections", strconv.Itoa(c.MaxConnections))

	addSection("Socket")
	addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPNoDelay))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))

	c.Engine.writeTo(addSection, addField)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Connect service configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the socket level settings of the connect side
type ClientTransportConfig struct {
	// Endpoints are the outbound targets, one endpoint slot each
	Endpoints []string
	SocketConf
	TCPConf
}

// ClientConfig configures one connect service
type ClientConfig struct {
	Transport ClientTransportConfig
	Engine    EngineConf

	// ConnectTimeout bounds a single non-blocking connect attempt
	ConnectTimeout time.Duration
	// ReconnectInterval is the minimum distance between two attempts on one endpoint
	ReconnectInterval time.Duration

	LogLevel string
}

// Validate fills defaults and checks the configuration
func (c *ClientConfig) Validate() error {
	if len(c.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	for i, ep := range c.Transport.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("endpoint %d is empty", i)
		}
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c.Engine.validate()
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Connect Service")
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Reconnect Interval", c.ReconnectInterval.String())
	addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPNoDelay))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	c.Engine.writeTo(addSection, addField)

	return sb.String()
}

func (c *EngineConf) writeTo(addSection func(string), addField func(string, string)) {
	addSection("Engine")
	addField("Max Message Size", fmt.Sprintf("%d bytes", c.MaxMessageSize))
	addField("Max Queue Depth", strconv.Itoa(c.MaxQueueDepth))
	addField("Poll Timeout", c.PollTimeout.String())
	addField("Channel Size", strconv.Itoa(c.ChannelSize))
	addField("Batch Size", strconv.Itoa(c.BatchSize))
	addField("Deliver Retries", fmt.Sprintf("%d x %s", c.DeliverRetries, c.DeliverBackoff))
}
