// Package unix provides the Unix domain socket connectors of the dTCP reactor
// services, for processes running on the same machine.
//
// Endpoints are socket paths. The server connector removes a stale socket
// file before binding. TCP options do not apply, only the kernel buffer sizes
// of SocketConf are set.
//
// Key Components:
//
//   - clientConnector: connects to a socket path
//
//   - serverConnector: creates the listening socket
package unix
