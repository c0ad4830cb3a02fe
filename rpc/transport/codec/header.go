package codec

import (
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/dTCP/rpc/common"
)

const (
	// HeaderSize is the fixed size of a frame header in bytes
	HeaderSize = 18

	// MaxBodySize is the largest body the 20 bit size field can describe
	MaxBodySize = 1<<20 - 1

	// SequenceModulus is the number of distinct sequence numbers
	SequenceModulus = 1 << sequenceBits

	sequenceBits = 12
	sequenceMask = SequenceModulus - 1
)

var (
	// ErrSequenceMismatch means the stream lost synchronization
	ErrSequenceMismatch = errors.New("codec: sequence mismatch")
	// ErrOversize means a frame declared a body above the configured limit
	ErrOversize = errors.New("codec: body too large")
	// ErrPeerClosed means the peer ended the stream
	ErrPeerClosed = errors.New("codec: peer closed the connection")
)

// Header is the decoded form of a frame header
type Header struct {
	Sequence    uint16
	BodySize    uint32
	ProtocolID  uint16
	Extension   uint32
	Correlation uint64
}

// PutHeader encodes the header of env with the given sequence number into b,
// which must hold at least HeaderSize bytes. The body size is taken from env.
func PutHeader(b []byte, seq uint16, env *common.Envelope) {
	word := uint32(len(env.Body))<<sequenceBits | uint32(seq&sequenceMask)
	binary.LittleEndian.PutUint32(b[0:4], word)
	binary.LittleEndian.PutUint16(b[4:6], env.ProtocolID)
	binary.LittleEndian.PutUint32(b[6:10], env.Extension)
	binary.LittleEndian.PutUint64(b[10:18], env.Correlation)
}

// ParseHeader decodes the first HeaderSize bytes of b
func ParseHeader(b []byte) Header {
	word := binary.LittleEndian.Uint32(b[0:4])
	return Header{
		Sequence:    uint16(word & sequenceMask),
		BodySize:    word >> sequenceBits,
		ProtocolID:  binary.LittleEndian.Uint16(b[4:6]),
		Extension:   binary.LittleEndian.Uint32(b[6:10]),
		Correlation: binary.LittleEndian.Uint64(b[10:18]),
	}
}

// AppendFrame appends the complete frame of env to dst
func AppendFrame(dst []byte, seq uint16, env *common.Envelope) []byte {
	var hdr [HeaderSize]byte
	PutHeader(hdr[:], seq, env)
	dst = append(dst, hdr[:]...)
	return append(dst, env.Body...)
}

// nextSequence advances a sequence number with wraparound
func nextSequence(seq uint16) uint16 {
	return (seq + 1) & sequenceMask
}
