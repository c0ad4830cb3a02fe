// Package cmd implements the command-line interface of dTCP. It wraps the
// listen and connect services into commands for running and testing
// endpoints that speak the dTCP framing.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a listen service with an echo handler
//   - connect: Sends a number of messages to one or more endpoints and prints the replies
//   - bench: Closed loop latency benchmark built on the connect service
//   - util: Shared flags, configuration loading and transport selection (internal use)
//
// Every flag can also be set through an environment variable DTCP_<FLAG>,
// .env and .env.local in the working directory are loaded first.
//
// See dtcp -help for a list of all commands.
package cmd
