// Package common provides core data structures and utilities shared across
// the dTCP transport engine. It defines the message model that crosses the
// boundary between the reactor thread and business logic, the configuration
// records of both services, and the logging setup.
//
// The package focuses on:
//   - Message and Envelope definitions (the decoded form of one wire frame)
//   - Connection id encoding (generation-tagged slab index)
//   - Configuration structures for the listen and connect services
//   - Custom logging implementation integrated with Dragonboat's logger package
//
// Key Components:
//
//   - Message: tagged union of a Normal message (connection id + Envelope) and an
//     Exceptional message (connection id + EventKind). Exceptional messages report
//     lifecycle changes (new connection, peer closed) and policy rejections
//     (queue full, unknown id, busy endpoint) back to the producer.
//
//   - Envelope: correlation id, protocol id, extension bit flags and an opaque body.
//
//   - ServerConfig / ClientConfig: plain records validated by Validate(), which also
//     fills defaults. Both embed EngineConf with the reactor loop knobs.
//
//   - Logger: custom formatting factory installed into dragonboat's logger registry,
//     so every package obtains its logger with logger.GetLogger(name).
package common
