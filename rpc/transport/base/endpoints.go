package base

import (
	"github.com/ValentinKolb/dTCP/lib/util"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"time"
)

// endpointState is the connection state of one endpoint slot
type endpointState uint8

const (
	stateDisconnected endpointState = iota
	stateConnecting
	stateConnected
)

func (s endpointState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// endpoint is one configured outbound target. The slot lives as long as the
// service, only its connection comes and goes.
type endpoint struct {
	index  int
	target string
	state  endpointState

	fd         int
	registered bool
	conn       *conn

	// epoch changes with every attempt so events of an old descriptor are ignored
	epoch uint32

	lastAttempt time.Time
	deadline    time.Time // end of the running connect attempt
	attempts    uint64
}

// id is the public id of the slot, its index
func (ep *endpoint) id() common.ConnID { return common.MakeConnID(0, uint32(ep.index)) }

// key is the reactor key of the current descriptor
func (ep *endpoint) key() uint64 { return uint64(ep.epoch)<<32 | uint64(ep.index) }

// endpointPool is the registry of the connect service. Disconnected slots
// are kept in a schedule ordered by the time of their next allowed attempt.
type endpointPool struct {
	slots    []*endpoint
	schedule *util.Schedule
	interval time.Duration
}

func newEndpointPool(targets []string, interval time.Duration, now time.Time) *endpointPool {
	p := &endpointPool{
		slots:    make([]*endpoint, len(targets)),
		schedule: util.NewSchedule(),
		interval: interval,
	}
	for i, target := range targets {
		p.slots[i] = &endpoint{index: i, target: target, fd: -1}
		p.schedule.Set(i, now)
	}
	return p
}

// get returns the slot of id, nil for ids that name no slot
func (p *endpointPool) get(id common.ConnID) *endpoint {
	if id.Generation() != 0 || int(id.Index()) >= len(p.slots) {
		return nil
	}
	return p.slots[id.Index()]
}

// byKey resolves a reactor key, nil for stale keys of a previous descriptor
func (p *endpointPool) byKey(key uint64) *endpoint {
	idx := int(uint32(key))
	if idx >= len(p.slots) {
		return nil
	}
	ep := p.slots[idx]
	if ep.state == stateDisconnected || uint64(ep.epoch) != key>>32 {
		return nil
	}
	return ep
}

// eligible reports whether ep may start another attempt at now
func (p *endpointPool) eligible(ep *endpoint, now time.Time) bool {
	return ep.state == stateDisconnected && (ep.lastAttempt.IsZero() || now.Sub(ep.lastAttempt) >= p.interval)
}

// beginAttempt stamps a new attempt on ep
func (p *endpointPool) beginAttempt(ep *endpoint, now time.Time, timeout time.Duration) {
	ep.lastAttempt = now
	ep.deadline = now.Add(timeout)
	ep.attempts++
	ep.epoch++
	if ep.epoch == 0 {
		ep.epoch = 1
	}
	ep.state = stateConnecting
}

// disconnect returns ep to the disconnected state and schedules its next attempt
func (p *endpointPool) disconnect(ep *endpoint) {
	ep.state = stateDisconnected
	ep.fd = -1
	ep.registered = false
	ep.conn = nil
	p.schedule.Set(ep.index, ep.lastAttempt.Add(p.interval))
}

// connected returns the number of connected slots
func (p *endpointPool) connected() int {
	n := 0
	for _, ep := range p.slots {
		if ep.state == stateConnected {
			n++
		}
	}
	return n
}
