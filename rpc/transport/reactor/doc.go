// Package reactor wraps the operating system readiness facility (epoll on
// Linux) behind a small, concrete API: Register, Modify, Deregister and Wait,
// keyed by an opaque 64 bit id chosen by the caller.
//
// All registrations are edge-triggered (EPOLLET). One notification may stand
// for several readiness transitions, so a caller must drain a ready descriptor
// until the kernel reports EAGAIN, or the remaining data (or buffer space) is
// never reported again.
//
// Wait retries EINTR transparently. Every other error from epoll_wait is
// returned to the caller and is meant to terminate the loop that owns the
// reactor.
//
// A Reactor is not safe for concurrent use; it is owned by exactly one loop
// goroutine.
package reactor
