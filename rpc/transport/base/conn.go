package base

import (
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/codec"
	"github.com/ValentinKolb/dTCP/rpc/transport/reactor"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"github.com/eapache/queue"
	"time"
)

// conn is the record of one live connection. It is owned by the loop
// goroutine of its service and never touched from anywhere else.
type conn struct {
	id  common.ConnID
	key uint64 // reactor registration key
	fd  int

	reader *codec.Reader
	writer codec.Writer
	emit   codec.EmitFunc

	// queue holds *common.Envelope, the head is the frame the writer works on
	queue    *queue.Queue
	maxQueue int
	maxBody  int

	poller   *reactor.Reactor
	interest reactor.Interest
	stats    *engineStats

	openedAt time.Time

	// readPending is set while unread input waits for room on Inbound
	readPending bool
	closed      bool

	msgsIn, msgsOut, bytesIn, bytesOut uint64
}

func newConn(fd int, poller *reactor.Reactor, conf common.EngineConf, stats *engineStats) *conn {
	return &conn{
		fd:       fd,
		reader:   codec.NewReader(conf.MaxMessageSize),
		queue:    queue.New(),
		maxQueue: conf.MaxQueueDepth,
		maxBody:  conf.MaxMessageSize,
		poller:   poller,
		stats:    stats,
		openedAt: time.Now(),
	}
}

// Read reads from the descriptor and counts the bytes as they arrive
func (c *conn) Read(p []byte) (int, error) {
	n, err := sock.Read(c.fd, p)
	if n > 0 {
		c.bytesIn += uint64(n)
		c.stats.bytesIn.Add(n)
	}
	return n, err
}

// enqueue appends env to the outbound queue. The depth is checked before the
// push so the queue never grows past maxQueue. When env is the only queued
// frame it is written right away instead of waiting for writability.
func (c *conn) enqueue(env common.Envelope) error {
	if len(env.Body) > c.maxBody {
		return errTooLarge
	}
	if c.queue.Length() >= c.maxQueue {
		return errQueueFull
	}
	c.queue.Add(&env)
	if c.queue.Length() == 1 {
		return c.drain()
	}
	return nil
}

// drain writes queued frames until the queue is empty (interest drops to
// read) or the socket is full (interest escalates to read+write)
func (c *conn) drain() error {
	for c.queue.Length() > 0 {
		env := c.queue.Peek().(*common.Envelope)
		res, err := c.writer.Write(sock.FD(c.fd), env)
		switch res {
		case codec.Finish:
			c.queue.Remove()
			size := codec.HeaderSize + len(env.Body)
			c.msgsOut++
			c.bytesOut += uint64(size)
			c.stats.messagesOut.Inc()
			c.stats.bytesOut.Add(size)
		case codec.BufferFull:
			return c.setInterest(reactor.InterestReadWrite)
		default:
			return err
		}
	}
	return c.setInterest(reactor.InterestRead)
}

// setInterest changes the reactor registration if it differs from the current one
func (c *conn) setInterest(interest reactor.Interest) error {
	if c.interest == interest {
		return nil
	}
	if err := c.poller.Modify(c.key, c.fd, interest); err != nil {
		return err
	}
	c.interest = interest
	return nil
}

// queued returns the number of frames waiting to be written, including a partially written one
func (c *conn) queued() int { return c.queue.Length() }
