package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/reactor"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"runtime"
	"time"
)

var errConnectTimeout = errors.New("connect timed out")

// -----------------------------------------------------------
// Connect service
// -----------------------------------------------------------

// Client is the connect side service. It keeps one endpoint slot per
// configured target, connects it with non-blocking connects and reconnects
// it at a fixed interval after every failure.
type Client struct {
	*engine
	connector IClientConnector
	config    common.ClientConfig
	pool      *endpointPool
}

// NewClient validates config and prepares the loop. No connection is made
// before Run.
func NewClient(connector IClientConnector, config common.ClientConfig) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	e, err := newEngine("connect", connector.GetName(), config.Engine)
	if err != nil {
		return nil, err
	}

	c := &Client{
		engine:    e,
		connector: connector,
		config:    config,
		pool:      newEndpointPool(config.Transport.Endpoints, config.ReconnectInterval, time.Now()),
	}
	e.fatal = func(cn *conn, err error) {
		if ep := c.pool.get(cn.id); ep != nil && ep.conn == cn {
			c.drop(ep, err)
		}
	}
	return c, nil
}

// Endpoints returns the number of endpoint slots. Slot i is addressed with
// common.ConnID(i).
func (c *Client) Endpoints() int { return len(c.pool.slots) }

// Run runs the loop on the calling goroutine, which is locked to its OS
// thread. It returns nil after Stop or when ctx is done, and an error when
// the reactor fails. Connect failures are never fatal.
func (c *Client) Run(ctx context.Context) error {
	if err := c.begin(ctx); err != nil {
		return err
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer c.shutdown()

	Logger.Infof("Starting %s connect service with %d endpoints (reconnect interval %s)",
		c.connector.GetName(), len(c.pool.slots), c.config.ReconnectInterval)

	busy := false
	for !c.stopped() {
		now := time.Now()
		c.tick(now)

		timeout := c.pollTimeout(busy)
		if d, ok := c.pool.schedule.Until(now); ok && d < timeout {
			timeout = d
		}

		events, err := c.poller.Wait(timeout)
		if err != nil {
			Logger.Errorf("connect service: %v", err)
			return fmt.Errorf("reactor wait: %w", err)
		}
		for _, ev := range events {
			c.dispatch(ev)
		}
		busy = c.iterate(c.write) || len(events) > 0
	}

	Logger.Infof("Stopping %s connect service", c.connector.GetName())
	return nil
}

// --------------------------------------------------------------------------
// Reconnection
// --------------------------------------------------------------------------

// tick fails expired connect attempts and starts the attempts that are due
func (c *Client) tick(now time.Time) {
	for _, ep := range c.pool.slots {
		if ep.state == stateConnecting && !now.Before(ep.deadline) {
			c.failAttempt(ep, errConnectTimeout)
		}
	}

	for {
		idx, ok := c.pool.schedule.PopDue(now)
		if !ok {
			return
		}
		ep := c.pool.slots[idx]
		if !c.pool.eligible(ep, now) {
			// never attempt twice within one interval, the rest waits for the next tick
			c.pool.schedule.Set(idx, ep.lastAttempt.Add(c.pool.interval))
			return
		}
		c.startAttempt(ep, now)
	}
}

// startAttempt begins a non-blocking connect for ep
func (c *Client) startAttempt(ep *endpoint, now time.Time) {
	c.pool.beginAttempt(ep, now, c.config.ConnectTimeout)
	c.stats.reconnectAttempts.Inc()

	sa, family, err := c.connector.Resolve(ep.target)
	if err != nil {
		c.failAttempt(ep, err)
		return
	}

	fd, inProgress, err := sock.Connect(sa, family)
	if err != nil {
		c.failAttempt(ep, err)
		return
	}
	ep.fd = fd

	if !inProgress {
		c.establish(ep)
		return
	}

	if err := c.poller.Register(ep.key(), fd, reactor.InterestReadWrite); err != nil {
		c.failAttempt(ep, err)
		return
	}
	ep.registered = true
	Logger.Debugf("connecting to %s (endpoint %d, attempt %d)", ep.target, ep.index, ep.attempts)
}

// establish turns a completed connect into a live connection
func (c *Client) establish(ep *endpoint) {
	if err := c.connector.UpgradeConnection(ep.fd, c.config); err != nil {
		c.failAttempt(ep, fmt.Errorf("socket options: %w", err))
		return
	}

	cn := c.openConn(ep.fd)
	cn.id = ep.id()
	cn.key = ep.key()

	if ep.registered {
		cn.interest = reactor.InterestReadWrite
		if err := cn.setInterest(reactor.InterestRead); err != nil {
			c.failAttempt(ep, err)
			return
		}
	} else {
		if err := c.poller.Register(cn.key, ep.fd, reactor.InterestRead); err != nil {
			c.failAttempt(ep, err)
			return
		}
		ep.registered = true
		cn.interest = reactor.InterestRead
	}

	ep.conn = cn
	ep.state = stateConnected
	c.stats.accepted.Inc()
	c.live.Add(1)
	Logger.Infof("connected to %s (endpoint %d)", ep.target, ep.index)
	c.deliver(common.NewExceptionalMessage(ep.id(), common.EventNewConnection))
}

// failAttempt closes the descriptor of a failed attempt. The next attempt is
// scheduled one interval after this attempt started.
func (c *Client) failAttempt(ep *endpoint, cause error) {
	if ep.fd >= 0 {
		if ep.registered {
			c.poller.Deregister(ep.key(), ep.fd)
		}
		sock.Close(ep.fd)
	}
	c.stats.reconnectFailures.Inc()
	c.pool.disconnect(ep)
	Logger.Warningf("connect to %s failed: %v (next attempt in %s)",
		ep.target, cause, time.Until(ep.lastAttempt.Add(c.pool.interval)).Round(time.Millisecond))
}

// drop tears down the live connection of ep. The slot stays and becomes
// eligible again one interval from now.
func (c *Client) drop(ep *endpoint, cause error) {
	event := c.closeConn(ep.conn, cause)
	ep.lastAttempt = time.Now()
	c.pool.disconnect(ep)
	Logger.Infof("endpoint %d (%s) is %s, %d of %d connected",
		ep.index, ep.target, ep.state, c.pool.connected(), len(c.pool.slots))
	c.deliver(common.NewExceptionalMessage(ep.id(), event))
}

// --------------------------------------------------------------------------
// Event dispatch and write API
// --------------------------------------------------------------------------

// dispatch routes one readiness event
func (c *Client) dispatch(ev reactor.Event) {
	ep := c.pool.byKey(ev.ID)
	if ep == nil {
		return
	}

	switch ep.state {
	case stateConnecting:
		if err := sock.SocketError(ep.fd); err != nil {
			c.failAttempt(ep, err)
			return
		}
		if ev.Failed() {
			c.failAttempt(ep, errors.New("connection reset during connect"))
			return
		}
		if ev.Writable() {
			c.establish(ep)
		}

	case stateConnected:
		if err := c.handleEvent(ep.conn, ev); err != nil {
			c.drop(ep, err)
		}
	}
}

// write handles one message taken from Outbound
func (c *Client) write(msg common.Message) {
	ep := c.pool.get(msg.Conn)
	if ep == nil {
		c.reject(msg.Conn, common.EventUnknownID)
		return
	}

	if !msg.IsNormal() {
		if msg.Event == common.EventConnectionClosing && ep.state == stateConnected {
			c.drop(ep, errLocalClose)
		}
		return
	}

	// no queuing across reconnects
	if ep.state != stateConnected {
		c.reject(msg.Conn, common.EventBusy)
		return
	}

	if err := c.enqueue(ep.conn, msg.Envelope); err != nil {
		c.drop(ep, err)
	}
}

// shutdown closes every descriptor once the loop ends
func (c *Client) shutdown() {
	for _, ep := range c.pool.slots {
		if ep.fd < 0 {
			continue
		}
		if ep.registered {
			c.poller.Deregister(ep.key(), ep.fd)
		}
		sock.Close(ep.fd)
		ep.fd = -1
		ep.registered = false
		ep.conn = nil
		ep.state = stateDisconnected
	}
	c.live.Store(0)
	c.finish()
}
