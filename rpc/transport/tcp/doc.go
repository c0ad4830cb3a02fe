// Package tcp provides the TCP connectors of the dTCP reactor services. It
// plugs socket creation and TCP specific socket options into the base package,
// which implements the actual event loops.
//
// Key Components:
//
//   - serverConnector: binds a non-blocking listener (SO_REUSEADDR) and applies
//     TCP_NODELAY plus the kernel buffer sizes to every accepted connection
//
//   - clientConnector: resolves host:port targets before every connect attempt
//     and applies the same options once a connect completed
//
// IPv4 and IPv6 are both supported, the family follows from the resolved
// address.
package tcp
