package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/codec"
	"github.com/ValentinKolb/dTCP/rpc/transport/reactor"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"github.com/VictoriaMetrics/metrics"
	"github.com/eapache/queue"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sys/unix"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/base")

// readBudget bounds the bytes read from one connection before the loop moves on
const readBudget = 4 * 64 * 1024

var (
	// ErrAlreadyRunning is returned by Run when the loop was started before
	ErrAlreadyRunning = errors.New("service is already running")

	errQueueFull  = errors.New("outbound queue full")
	errTooLarge   = errors.New("message body above the configured limit")
	errLocalClose = errors.New("connection closed on request")
)

// --------------------------------------------------------------------------
// Statistics
// --------------------------------------------------------------------------

// Stats is a point in time copy of the counters of one service
type Stats struct {
	Accepted          uint64
	RejectedCapacity  uint64
	Closed            uint64
	MessagesIn        uint64
	MessagesOut       uint64
	BytesIn           uint64
	BytesOut          uint64
	QueueFull         uint64
	UnknownID         uint64
	Busy              uint64
	TooLarge          uint64
	DeliverStalls     uint64
	ReconnectAttempts uint64
	ReconnectFailures uint64
	Live              int64
}

// engineStats holds the metric handles, all of them are safe to read from other goroutines
type engineStats struct {
	accepted          *metrics.Counter
	rejectedCapacity  *metrics.Counter
	closed            *metrics.Counter
	messagesIn        *metrics.Counter
	messagesOut       *metrics.Counter
	bytesIn           *metrics.Counter
	bytesOut          *metrics.Counter
	queueFull         *metrics.Counter
	unknownID         *metrics.Counter
	busy              *metrics.Counter
	tooLarge          *metrics.Counter
	deliverStalls     *metrics.Counter
	reconnectAttempts *metrics.Counter
	reconnectFailures *metrics.Counter
}

func newEngineStats(set *metrics.Set, service, transport string) engineStats {
	counter := func(name string) *metrics.Counter {
		return set.NewCounter(fmt.Sprintf(`dtcp_%s_total{service=%q,transport=%q}`, name, service, transport))
	}
	return engineStats{
		accepted:          counter("accepted"),
		rejectedCapacity:  counter("rejected_capacity"),
		closed:            counter("closed"),
		messagesIn:        counter("messages_in"),
		messagesOut:       counter("messages_out"),
		bytesIn:           counter("bytes_in"),
		bytesOut:          counter("bytes_out"),
		queueFull:         counter("queue_full"),
		unknownID:         counter("unknown_id"),
		busy:              counter("busy"),
		tooLarge:          counter("too_large"),
		deliverStalls:     counter("deliver_stalls"),
		reconnectAttempts: counter("reconnect_attempts"),
		reconnectFailures: counter("reconnect_failures"),
	}
}

// --------------------------------------------------------------------------
// Engine (state shared by the listen and the connect service)
// --------------------------------------------------------------------------

// engine owns the reactor and the channel boundary of one service. Everything
// except the channels, the stop signal and the metrics belongs to the loop
// goroutine.
type engine struct {
	name   string
	conf   common.EngineConf
	poller *reactor.Reactor

	inbound  chan common.Message
	outbound chan common.Message
	recv     <-chan common.Message // nil once the producer closed outbound

	ctx      context.Context
	stopCh   chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	// backlog holds messages in arrival order that found Inbound full. While it
	// is not empty no connection is read, their input stays in the kernel.
	backlog *queue.Queue
	// paused are connections with unread input, edge-triggered readiness
	// will not report them again
	paused []*conn
	// fatal tears down a connection whose resumed read failed
	fatal func(c *conn, err error)

	set   *metrics.Set
	stats engineStats
	live  atomic.Int64
}

func newEngine(service, transport string, conf common.EngineConf) (*engine, error) {
	poller, err := reactor.New(reactor.DefaultMaxEvents)
	if err != nil {
		return nil, err
	}

	e := &engine{
		name:     service,
		conf:     conf,
		poller:   poller,
		inbound:  make(chan common.Message, conf.ChannelSize),
		outbound: make(chan common.Message, conf.ChannelSize),
		ctx:      context.Background(),
		stopCh:   make(chan struct{}),
		backlog:  queue.New(),
		set:      metrics.NewSet(),
	}
	e.recv = e.outbound
	e.stats = newEngineStats(e.set, service, transport)
	e.set.NewGauge(fmt.Sprintf(`dtcp_connections{service=%q,transport=%q}`, service, transport), func() float64 {
		return float64(e.live.Load())
	})
	return e, nil
}

// Inbound returns the channel of decoded and exceptional messages. It is
// closed when Run returns.
func (e *engine) Inbound() <-chan common.Message { return e.inbound }

// Outbound returns the channel the service takes messages to write from
func (e *engine) Outbound() chan<- common.Message { return e.outbound }

// Stop asks the loop to return. It is checked once per loop iteration.
func (e *engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Metrics returns the metric set of the service
func (e *engine) Metrics() *metrics.Set { return e.set }

// Stats returns a snapshot of the service counters
func (e *engine) Stats() Stats {
	s := e.stats
	return Stats{
		Accepted:          s.accepted.Get(),
		RejectedCapacity:  s.rejectedCapacity.Get(),
		Closed:            s.closed.Get(),
		MessagesIn:        s.messagesIn.Get(),
		MessagesOut:       s.messagesOut.Get(),
		BytesIn:           s.bytesIn.Get(),
		BytesOut:          s.bytesOut.Get(),
		QueueFull:         s.queueFull.Get(),
		UnknownID:         s.unknownID.Get(),
		Busy:              s.busy.Get(),
		TooLarge:          s.tooLarge.Get(),
		DeliverStalls:     s.deliverStalls.Get(),
		ReconnectAttempts: s.reconnectAttempts.Get(),
		ReconnectFailures: s.reconnectFailures.Get(),
		Live:              e.live.Load(),
	}
}

// begin marks the engine as running and binds the context of Run
func (e *engine) begin(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.ctx = ctx
	return nil
}

// finish releases the reactor and closes the inbound channel
func (e *engine) finish() {
	if n := e.backlog.Length(); n > 0 {
		Logger.Infof("%s: dropping %d undelivered messages", e.name, n)
	}
	if err := e.poller.Close(); err != nil {
		Logger.Warningf("%s: failed to close reactor: %v", e.name, err)
	}
	close(e.inbound)
}

// stopped reports whether Stop was called or the context of Run is done
func (e *engine) stopped() bool {
	select {
	case <-e.stopCh:
		return true
	case <-e.ctx.Done():
		return true
	default:
		return false
	}
}

// pollTimeout is 0 after a busy iteration and the configured timeout otherwise
func (e *engine) pollTimeout(busy bool) time.Duration {
	if busy {
		return 0
	}
	return e.conf.PollTimeout
}

// deliver hands msg to the consumer without ever blocking the loop. A full
// channel is retried a bounded number of times with a short sleep, after
// that msg waits in the backlog and reading pauses until the consumer has
// caught up. Messages behind a backlog are queued to keep their order.
func (e *engine) deliver(msg common.Message) {
	if e.backlog.Length() == 0 {
		for i := 0; i < e.conf.DeliverRetries; i++ {
			select {
			case e.inbound <- msg:
				return
			default:
			}
			time.Sleep(e.conf.DeliverBackoff)
		}
		e.stats.deliverStalls.Inc()
		Logger.Debugf("%s: inbound channel full, pausing reads", e.name)
	}
	e.backlog.Add(msg)
}

// flushBacklog moves waiting messages to Inbound as far as there is room
// and reports whether any moved
func (e *engine) flushBacklog() bool {
	moved := false
	for e.backlog.Length() > 0 {
		select {
		case e.inbound <- e.backlog.Peek().(common.Message):
			e.backlog.Remove()
			moved = true
		default:
			return moved
		}
	}
	return moved
}

// resume reads the paused connections once the backlog is empty and
// reports whether it did
func (e *engine) resume() bool {
	if len(e.paused) == 0 || e.backlog.Length() > 0 {
		return false
	}
	paused := e.paused
	e.paused = nil
	for _, c := range paused {
		c.readPending = false
		if c.closed {
			continue
		}
		if err := e.read(c); err != nil {
			e.fatal(c, err)
		}
	}
	return true
}

// iterate runs the intake and delivery work of one loop iteration and
// reports whether there was any
func (e *engine) iterate(write func(common.Message)) bool {
	taken := e.takeOutbound(write)
	flushed := e.flushBacklog()
	resumed := e.resume()
	return taken > 0 || flushed || resumed
}

// reject reports a policy rejection for id back to the producer
func (e *engine) reject(id common.ConnID, event common.EventKind) {
	switch event {
	case common.EventQueueFull:
		e.stats.queueFull.Inc()
	case common.EventUnknownID:
		e.stats.unknownID.Inc()
	case common.EventBusy:
		e.stats.busy.Inc()
	case common.EventServerException:
		e.stats.tooLarge.Inc()
	}
	Logger.Debugf("%s: rejected write to %s: %s", e.name, id, event)
	e.deliver(common.NewExceptionalMessage(id, event))
}

// takeOutbound passes at most BatchSize pending outbound messages to write
// without blocking and returns how many it took
func (e *engine) takeOutbound(write func(common.Message)) int {
	n := 0
	for n < e.conf.BatchSize {
		select {
		case msg, ok := <-e.recv:
			if !ok {
				Logger.Infof("%s: outbound channel closed", e.name)
				e.recv = nil
				return n
			}
			write(msg)
			n++
		default:
			return n
		}
	}
	return n
}

// --------------------------------------------------------------------------
// Connection handling shared by both services
// --------------------------------------------------------------------------

// openConn creates the record of an established connection
func (e *engine) openConn(fd int) *conn {
	c := newConn(fd, e.poller, e.conf, &e.stats)
	c.emit = func(env common.Envelope) {
		c.msgsIn++
		e.stats.messagesIn.Inc()
		e.deliver(common.NewNormalMessage(c.id, env))
	}
	return c
}

// handleEvent runs the readiness of one live connection. A non nil error
// means the connection has to be torn down.
func (e *engine) handleEvent(c *conn, ev reactor.Event) error {
	if ev.Readable() || ev.HungUp() || ev.Failed() {
		if err := e.read(c); err != nil {
			return err
		}
	}
	if ev.Writable() {
		if err := c.drain(); err != nil {
			return err
		}
	}
	// a paused connection learns about the failure from its resumed read
	if ev.Failed() && !c.readPending {
		if err := sock.SocketError(c.fd); err != nil {
			return err
		}
		return codec.ErrPeerClosed
	}
	return nil
}

// read decodes at most readBudget bytes of c. Input that is left in the
// socket, or that arrives while the backlog is not empty, marks c paused.
func (e *engine) read(c *conn) error {
	if e.backlog.Length() > 0 {
		e.pause(c)
		return nil
	}
	_, drained, err := c.reader.DecodeLimit(c, c.emit, readBudget)
	if err != nil {
		return err
	}
	if !drained {
		e.pause(c)
	}
	return nil
}

func (e *engine) pause(c *conn) {
	if !c.readPending {
		c.readPending = true
		e.paused = append(e.paused, c)
	}
}

// enqueue queues env on c and reports policy rejections. Only a fatal write
// error is returned.
func (e *engine) enqueue(c *conn, env common.Envelope) error {
	err := c.enqueue(env)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errQueueFull):
		e.reject(c.id, common.EventQueueFull)
		return nil
	case errors.Is(err, errTooLarge):
		e.reject(c.id, common.EventServerException)
		return nil
	default:
		return err
	}
}

// closeConn deregisters and closes c and returns the event reported to the consumer
func (e *engine) closeConn(c *conn, cause error) common.EventKind {
	if err := e.poller.Deregister(c.key, c.fd); err != nil {
		Logger.Debugf("%s: %v", e.name, err)
	}
	if err := sock.Close(c.fd); err != nil {
		Logger.Warningf("%s: failed to close fd %d: %v", e.name, c.fd, err)
	}
	c.closed = true
	e.stats.closed.Inc()
	e.live.Add(-1)

	event := closeEvent(cause)
	if event == common.EventPeerClosed {
		Logger.Debugf("%s: connection %s closed by peer after %s (in %d msgs / %d B, out %d msgs / %d B, dropped %d queued)",
			e.name, c.id, time.Since(c.openedAt).Round(time.Millisecond), c.msgsIn, c.bytesIn, c.msgsOut, c.bytesOut, c.queued())
	} else {
		Logger.Warningf("%s: closing connection %s: %v", e.name, c.id, cause)
	}
	return event
}

// closeEvent maps the cause of a teardown to the exceptional event kind.
// End of stream and resets by the peer are PeerClosed.
func closeEvent(cause error) common.EventKind {
	switch {
	case errors.Is(cause, codec.ErrPeerClosed),
		errors.Is(cause, unix.ECONNRESET),
		errors.Is(cause, unix.EPIPE):
		return common.EventPeerClosed
	default:
		return common.EventConnectionClosing
	}
}
