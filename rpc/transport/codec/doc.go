// Package codec implements the length-prefixed framing used on every dTCP
// connection.
//
// Frame Layout (little endian, 18 byte header):
//
//	+--------+--------------------------------+
//	| 0..3   | (body_size << 12) | sequence   |
//	| 4..5   | protocol id                    |
//	| 6..9   | extension flags                |
//	| 10..17 | correlation id                 |
//	+--------+--------------------------------+
//	| body_size bytes of body                 |
//	+-----------------------------------------+
//
// Sequence numbers run from 0 to 4095 and wrap, each direction of a
// connection counts independently. The 20 remaining bits of the first word
// carry the body size, so a body is at most MaxBodySize bytes.
//
// Reader and Writer are resumable state machines: one instance belongs to one
// connection, keeps partial header and body progress between calls and never
// blocks. The Reader decodes an arbitrary number of frames per call and
// fails permanently on a sequence mismatch or an oversized body. The Writer
// finishes one frame at a time and reports BufferFull when the socket stops
// accepting bytes, resuming from the exact offset on the next call.
package codec
