// Package sock holds the raw socket primitives the reactor loops are built on.
//
// Every descriptor handled here is non-blocking. Read and Write retry on EINTR
// and report EAGAIN / EWOULDBLOCK as ErrWouldBlock, so callers driving an
// edge-triggered reactor can loop until ErrWouldBlock without ever touching
// errno themselves. A zero byte read is reported as io.EOF.
//
// FD wraps a descriptor as an io.Reader / io.Writer with exactly these
// semantics, which is how the framing codec consumes it.
//
// The remaining helpers cover the socket lifecycle: creating listeners,
// accepting, non-blocking connects (Connect returns inProgress=true on
// EINPROGRESS, completion is checked with SocketError once the descriptor
// becomes writable) and the option setters used by the tcp and unix
// connectors.
package sock
