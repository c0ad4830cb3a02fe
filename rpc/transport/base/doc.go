// Package base implements the two reactor driven services of dTCP independent
// of the concrete socket family. Protocol specific parts (creating the
// listener, resolving targets, socket options) are injected through the
// IServerConnector and IClientConnector interfaces, see the tcp and unix
// packages.
//
// Both services run their whole event loop (reactor wait, dispatch, decode,
// encode) on the goroutine that calls Run, locked to one OS thread. Nothing
// inside the loop is shared, so there is no locking. Business logic talks to a
// service only through two bounded channels:
//
//   - Inbound carries decoded frames as normal messages plus exceptional
//     messages for lifecycle events (NewConnection, PeerClosed,
//     ConnectionClosing) and rejected writes (UnknownId, QueueFull, Busy,
//     ServerException).
//   - Outbound carries messages to write. An exceptional ConnectionClosing
//     message closes the addressed connection.
//
// Key Components:
//
//   - Server: the listen service. Connections live in a fixed capacity slab
//     with generation-tagged ids, so an id is never reused while a consumer may
//     still hold it. Connections beyond the capacity are accepted and closed
//     right away.
//
//   - Client: the connect service. Every configured endpoint owns one slot
//     whose id is its index. Slots move between disconnected, connecting and
//     connected; a schedule ordered by the next allowed attempt makes sure two
//     attempts on one endpoint are at least ReconnectInterval apart. Writes to a
//     slot without a live connection are rejected with Busy.
//
//   - conn: the per-connection record with the codec state and an outbound
//     FIFO limited to MaxQueueDepth frames. A frame that finds the queue empty
//     is written through immediately, the descriptor only asks for
//     writability while frames are left over.
//
// Backpressure:
//
//	A full Inbound channel is retried DeliverRetries times with a
//	DeliverBackoff sleep, then the loop blocks on it until the consumer catches
//	up or the service stops. A full per-connection queue never blocks, the
//	write is rejected with QueueFull instead.
//
// Metrics:
//
//	Every service owns a VictoriaMetrics metric set (see Metrics) with counters
//	for connections, messages, bytes and rejections.
package base
