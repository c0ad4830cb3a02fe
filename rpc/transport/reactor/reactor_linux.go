//go:build linux
// +build linux

package reactor

import (
	"fmt"
	"golang.org/x/sys/unix"
	"time"
)

// Reactor is an edge-triggered epoll instance
type Reactor struct {
	epfd   int
	events []unix.EpollEvent
	out    []Event
}

// New creates an epoll instance with room for maxEvents notifications per Wait
func New(maxEvents int) (*Reactor, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	Logger.Debugf("created epoll instance %d (max %d events per wait)", epfd, maxEvents)
	return &Reactor{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
		out:    make([]Event, 0, maxEvents),
	}, nil
}

// Register adds fd to the watch list under id
func (r *Reactor) Register(id uint64, fd int, interest Interest) error {
	ev := epollEvent(id, interest)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify replaces the interest set (and id) of an already registered fd
func (r *Reactor) Modify(id uint64, fd int, interest Interest) error {
	ev := epollEvent(id, interest)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// Deregister removes fd from the watch list. Closing fd afterwards is the caller's job.
func (r *Reactor) Deregister(id uint64, fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d (id %d): %w", fd, id, err)
	}
	return nil
}

// Wait blocks up to timeout for readiness. A negative timeout blocks
// indefinitely, zero polls. The returned slice is reused by the next call.
func (r *Reactor) Wait(timeout time.Duration) ([]Event, error) {
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
		if msec == 0 && timeout > 0 {
			msec = 1
		}
	}

	var n int
	var err error
	for {
		n, err = unix.EpollWait(r.epfd, r.events, msec)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("epoll wait: %w", err)
	}

	r.out = r.out[:0]
	for i := 0; i < n; i++ {
		raw := &r.events[i]
		var t EventType
		if raw.Events&unix.EPOLLIN != 0 {
			t |= EventRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			t |= EventWrite
		}
		if raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			t |= EventError
		}
		if raw.Events&unix.EPOLLRDHUP != 0 {
			t |= EventHup
		}
		r.out = append(r.out, Event{ID: eventID(raw), Type: t})
	}
	return r.out, nil
}

// Close releases the epoll descriptor
func (r *Reactor) Close() error {
	return unix.Close(r.epfd)
}

// epollEvent builds the kernel event. The 64 bit id is split over the Fd and
// Pad words of the user data, which exist on every architecture.
func epollEvent(id uint64, interest Interest) unix.EpollEvent {
	ev := unix.EpollEvent{
		Events: unix.EPOLLET | unix.EPOLLRDHUP,
		Fd:     int32(uint32(id)),
		Pad:    int32(uint32(id >> 32)),
	}
	if interest&InterestRead != 0 {
		ev.Events |= unix.EPOLLIN
	}
	if interest&InterestWrite != 0 {
		ev.Events |= unix.EPOLLOUT
	}
	return ev
}

func eventID(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}
