package base

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/reactor"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"runtime"
)

// -----------------------------------------------------------
// Listen service
// -----------------------------------------------------------

// Server is the listen side service: it accepts connections, decodes their
// frames onto Inbound and writes messages taken from Outbound.
type Server struct {
	*engine
	connector IServerConnector
	config    common.ServerConfig

	lfd   int
	addr  string
	conns *slab
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewServer validates config, creates the listening socket through the
// connector and prepares the loop. Call Run to start serving.
func NewServer(connector IServerConnector, config common.ServerConfig) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	e, err := newEngine("listen", connector.GetName(), config.Engine)
	if err != nil {
		return nil, err
	}

	lfd, err := connector.Listen(config)
	if err != nil {
		e.poller.Close()
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	// the listener is the only descriptor registered under the reserved id
	if err := e.poller.Register(uint64(common.ListenerID), lfd, reactor.InterestRead); err != nil {
		sock.Close(lfd)
		e.poller.Close()
		return nil, fmt.Errorf("failed to register listener: %w", err)
	}

	addr, err := sock.LocalAddr(lfd)
	if err != nil {
		addr = config.Transport.Endpoint
	}

	s := &Server{
		engine:    e,
		connector: connector,
		config:    config,
		lfd:       lfd,
		addr:      addr,
		conns:     newSlab(config.MaxConnections),
	}
	e.fatal = s.teardown
	return s, nil
}

// Addr returns the bound address of the listener
func (s *Server) Addr() string { return s.addr }

// Run runs the loop on the calling goroutine, which is locked to its OS
// thread. It returns nil after Stop or when ctx is done, and an error when
// the reactor fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.begin(ctx); err != nil {
		return err
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer s.shutdown()

	Logger.Infof("Starting %s listen service on %s (max %d connections)",
		s.connector.GetName(), s.addr, s.config.MaxConnections)

	busy := false
	for !s.stopped() {
		events, err := s.poller.Wait(s.pollTimeout(busy))
		if err != nil {
			Logger.Errorf("listen service on %s: %v", s.addr, err)
			return fmt.Errorf("reactor wait: %w", err)
		}
		for _, ev := range events {
			s.dispatch(ev)
		}
		busy = s.iterate(s.write) || len(events) > 0
	}

	Logger.Infof("Stopping %s listen service on %s", s.connector.GetName(), s.addr)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dispatch routes one readiness event
func (s *Server) dispatch(ev reactor.Event) {
	id := common.ConnID(ev.ID)
	if id == common.ListenerID {
		s.acceptAll()
		return
	}

	c := s.conns.get(id)
	if c == nil {
		return // stale event of a connection closed earlier in this batch
	}
	if err := s.handleEvent(c, ev); err != nil {
		s.teardown(c, err)
	}
}

// acceptAll accepts until the backlog is empty, the listener is edge-triggered
func (s *Server) acceptAll() {
	for {
		fd, sa, err := sock.Accept(s.lfd)
		if err != nil {
			if !sock.IsWouldBlock(err) {
				Logger.Errorf("accept on %s failed: %v", s.addr, err)
			}
			return
		}
		peer := sock.AddrString(sa)

		if s.conns.full() {
			s.stats.rejectedCapacity.Inc()
			Logger.Warningf("rejecting connection from %s: %d connections open", peer, s.conns.len())
			sock.Close(fd)
			continue
		}

		if err := s.connector.UpgradeConnection(fd, s.config); err != nil {
			Logger.Warningf("failed to apply socket options for %s: %v", peer, err)
			sock.Close(fd)
			continue
		}

		c := s.openConn(fd)
		id, _ := s.conns.insert(c)
		c.id = id
		c.key = uint64(id)

		if err := s.poller.Register(c.key, fd, reactor.InterestRead); err != nil {
			Logger.Warningf("failed to register connection from %s: %v", peer, err)
			s.conns.remove(id)
			sock.Close(fd)
			continue
		}
		c.interest = reactor.InterestRead

		s.stats.accepted.Inc()
		s.live.Add(1)
		Logger.Debugf("accepted %s as %s", peer, id)
		s.deliver(common.NewExceptionalMessage(id, common.EventNewConnection))
	}
}

// write handles one message taken from Outbound
func (s *Server) write(msg common.Message) {
	c := s.conns.get(msg.Conn)
	if c == nil {
		s.reject(msg.Conn, common.EventUnknownID)
		return
	}

	if !msg.IsNormal() {
		if msg.Event == common.EventConnectionClosing {
			s.teardown(c, errLocalClose)
		}
		return
	}

	if err := s.enqueue(c, msg.Envelope); err != nil {
		s.teardown(c, err)
	}
}

// teardown removes c for good and tells the consumer
func (s *Server) teardown(c *conn, cause error) {
	event := s.closeConn(c, cause)
	s.conns.remove(c.id)
	s.deliver(common.NewExceptionalMessage(c.id, event))
}

// shutdown closes every connection and the listener once the loop ends
func (s *Server) shutdown() {
	s.conns.each(func(id common.ConnID, c *conn) {
		s.poller.Deregister(c.key, c.fd)
		sock.Close(c.fd)
		s.conns.remove(id)
	})
	s.live.Store(0)
	sock.Close(s.lfd)
	s.finish()
}
