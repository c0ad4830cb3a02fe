package reactor

import (
	"errors"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/reactor")

// ErrUnsupported is returned by New on platforms without an implementation
var ErrUnsupported = errors.New("reactor: this platform is not supported")

// DefaultMaxEvents is the size of the event buffer handed to one Wait call
const DefaultMaxEvents = 256

// Interest is the readiness a descriptor is registered for
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite

	InterestReadWrite = InterestRead | InterestWrite
)

// String returns a short name of the interest set
func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "r"
	case InterestWrite:
		return "w"
	case InterestReadWrite:
		return "rw"
	default:
		return "-"
	}
}

// EventType is the readiness reported for one descriptor
type EventType uint8

const (
	EventRead EventType = 1 << iota
	EventWrite
	EventError
	EventHup // peer shut down its writing side (EPOLLRDHUP)
)

// Event is one readiness notification
type Event struct {
	ID   uint64
	Type EventType
}

func (e Event) Readable() bool { return e.Type&EventRead != 0 }
func (e Event) Writable() bool { return e.Type&EventWrite != 0 }
func (e Event) Failed() bool   { return e.Type&EventError != 0 }
func (e Event) HungUp() bool   { return e.Type&EventHup != 0 }
