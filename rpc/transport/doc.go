// Package transport defines the service contract shared by all transport
// flavors. Business logic talks to a service only through channels: decoded
// frames and connection events arrive on Inbound, messages to write are sent
// on Outbound.
//
// Key Components:
//
//   - IServerTransport: the listen service. Connection ids are generation
//     tagged registry slots, an id never names a later connection.
//
//   - IClientTransport: the connect service. Connection ids are the indexes
//     of the configured endpoints and stay valid across reconnects.
//
// Implementations live in the tcp and unix subpackages, both built on the
// single threaded reactor loop of package base.
package transport
