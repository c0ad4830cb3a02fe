package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Connection IDs
// --------------------------------------------------------------------------

// ConnID is the handle of a live connection inside one engine instance.
// On the listen side it is a generation-tagged slab index (gen<<32 | index),
// on the connect side it is the index of the endpoint slot. The two spaces
// never mix, ids are only meaningful to the engine that issued them.
type ConnID uint64

// ListenerID is reserved for the listening socket itself and never names a
// listen-side connection (generations start at 1). On the connect side there
// is no listener and ConnID(0) is endpoint slot 0.
const ListenerID ConnID = 0

// String returns the id split into generation and index
func (id ConnID) String() string {
	return fmt.Sprintf("%d:%d", id.Generation(), id.Index())
}

// Index returns the slot index part of the id
func (id ConnID) Index() uint32 { return uint32(id) }

// Generation returns the generation part of the id
func (id ConnID) Generation() uint32 { return uint32(id >> 32) }

// MakeConnID combines a generation and a slot index
func MakeConnID(generation, index uint32) ConnID {
	return ConnID(uint64(generation)<<32 | uint64(index))
}

// --------------------------------------------------------------------------
// Envelope
// --------------------------------------------------------------------------

// Bit layout of Envelope.Extension
const (
	ExtEncrypted       uint32 = 1 << 0
	ExtCompressed      uint32 = 1 << 1
	extVersionShift           = 2
	extVersionMask     uint32 = 0x3f << extVersionShift
	extTransactionShift       = 8
	extTransactionMask uint32 = 0xffffff << extTransactionShift
)

// Envelope is one application message as it travels on the wire.
// The body is opaque to the transport.
type Envelope struct {
	Correlation uint64 `json:"correlation"` // routing / user identifier
	ProtocolID  uint16 `json:"protocol_id"` // application protocol number
	Extension   uint32 `json:"extension"`   // bit flags, see Ext* constants
	Body        []byte `json:"body,omitempty"`
}

// Encrypted reports the encrypted flag. No cipher is implemented, the bit is carried verbatim.
func (e *Envelope) Encrypted() bool { return e.Extension&ExtEncrypted != 0 }

// Compressed reports the compressed flag (carried verbatim, never acted upon)
func (e *Envelope) Compressed() bool { return e.Extension&ExtCompressed != 0 }

// Version returns the 6 bit protocol version
func (e *Envelope) Version() uint8 {
	return uint8((e.Extension & extVersionMask) >> extVersionShift)
}

// TransactionID returns the 24 bit transaction id
func (e *Envelope) TransactionID() uint32 {
	return (e.Extension & extTransactionMask) >> extTransactionShift
}

// SetVersion stores a 6 bit protocol version
func (e *Envelope) SetVersion(v uint8) {
	e.Extension = e.Extension&^extVersionMask | (uint32(v)<<extVersionShift)&extVersionMask
}

// SetTransactionID stores a 24 bit transaction id
func (e *Envelope) SetTransactionID(id uint32) {
	e.Extension = e.Extension&^extTransactionMask | (id<<extTransactionShift)&extTransactionMask
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// MessageKind distinguishes data messages from lifecycle / rejection notices
type MessageKind uint8

const (
	KindNormal MessageKind = iota
	KindExceptional
)

// Message is what crosses the channel boundary between the reactor and
// business logic, in both directions. Exceptional messages cary no envelope.
type Message struct {
	Kind     MessageKind `json:"kind"`
	Conn     ConnID      `json:"conn"`
	Envelope Envelope    `json:"envelope"`
	Event    EventKind   `json:"event,omitempty"`
}

// NewNormalMessage wraps an envelope addressed to (or received from) a connection
func NewNormalMessage(id ConnID, env Envelope) Message {
	return Message{Kind: KindNormal, Conn: id, Envelope: env}
}

// NewExceptionalMessage creates a lifecycle or rejection notice for a connection
func NewExceptionalMessage(id ConnID, event EventKind) Message {
	return Message{Kind: KindExceptional, Conn: id, Event: event}
}

// IsNormal reports whether the message carries an envelope
func (m *Message) IsNormal() bool { return m.Kind == KindNormal }

// String returns a short human readable form of the message
func (m Message) String() string {
	if m.Kind == KindExceptional {
		return fmt.Sprintf("exceptional{conn=%s event=%s}", m.Conn, m.Event)
	}
	return fmt.Sprintf("normal{conn=%s correlation=%d protocol=%d ext=%#x body=%dB}",
		m.Conn, m.Envelope.Correlation, m.Envelope.ProtocolID, m.Envelope.Extension, len(m.Envelope.Body))
}

// --------------------------------------------------------------------------
// Event Kinds
// --------------------------------------------------------------------------

// EventKind names the reason for an exceptional message
type EventKind uint8

const (
	EventUnknown           EventKind = iota
	EventNewConnection               // connection established (accepted or connected)
	EventConnectionClosing           // connection torn down locally (protocol or I/O error)
	EventPeerClosed                  // peer sent end-of-stream or hung up
	EventBusy                        // endpoint exists but has no live connection
	EventQueueFull                   // outbound queue at its configured depth
	EventServerException             // message could not be handled (e.g. body above the size cap)
	EventUnknownID                   // no live connection with this id
)

// String returns the string representation of an EventKind.
func (k EventKind) String() string {
	switch k {
	case EventNewConnection:
		return "new-connection"
	case EventConnectionClosing:
		return "connection-closing"
	case EventPeerClosed:
		return "peer-closed"
	case EventBusy:
		return "busy"
	case EventQueueFull:
		return "queue-full"
	case EventServerException:
		return "server-exception"
	case EventUnknownID:
		return "unknown-id"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for EventKind.
func (k EventKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for EventKind.
func (k *EventKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "new-connection":
		*k = EventNewConnection
	case "connection-closing":
		*k = EventConnectionClosing
	case "peer-closed":
		*k = EventPeerClosed
	case "busy":
		*k = EventBusy
	case "queue-full":
		*k = EventQueueFull
	case "server-exception":
		*k = EventServerException
	case "unknown-id":
		*k = EventUnknownID
	case "unknown":
		*k = EventUnknown
	default:
		return fmt.Errorf("unknown event kind: %s", s)
	}
	return nil
}

// IsClosure reports whether the event means the connection is gone
func (k EventKind) IsClosure() bool {
	return k == EventPeerClosed || k == EventConnectionClosing
}
