//go:build !linux
// +build !linux

package reactor

import "time"

// Reactor is unavailable on this platform
type Reactor struct{}

// New returns ErrUnsupported on platforms without epoll
func New(int) (*Reactor, error) {
	return nil, ErrUnsupported
}

func (r *Reactor) Register(uint64, int, Interest) error { return ErrUnsupported }
func (r *Reactor) Modify(uint64, int, Interest) error   { return ErrUnsupported }
func (r *Reactor) Deregister(uint64, int) error         { return ErrUnsupported }
func (r *Reactor) Wait(time.Duration) ([]Event, error)  { return nil, ErrUnsupported }
func (r *Reactor) Close() error                         { return nil }
