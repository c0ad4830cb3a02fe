// Package rpc holds the message plumbing of dTCP: the reactor services that
// move framed messages between sockets and channels, and the small pieces
// business logic builds on top of them.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the engine, including the
//     Message and Envelope types, configuration structures and logging.
//
//   - transport: The listen and connect services and their building blocks
//     (reactor, socket I/O, framing codec) with TCP and Unix socket flavors.
//
//   - router: A concurrent table that maps correlation ids to the
//     connection they were last seen on.
package rpc
