package codec

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"io"
)

// readChunkSize is the size of the scratch buffer one socket read fills
const readChunkSize = 64 * 1024

// EmitFunc receives every completely decoded envelope
type EmitFunc func(env common.Envelope)

// Reader is the decode state of one connection
type Reader struct {
	maxBody  uint32
	expected uint16

	hdr     [HeaderSize]byte
	hdrFill int

	cur      Header
	body     []byte
	bodyFill int
	inBody   bool

	scratch []byte
	err     error
}

// NewReader creates a decoder that accepts bodies of at most maxBody bytes.
// Values outside [0, MaxBodySize] are clamped to MaxBodySize.
func NewReader(maxBody int) *Reader {
	if maxBody <= 0 || maxBody > MaxBodySize {
		maxBody = MaxBodySize
	}
	return &Reader{maxBody: uint32(maxBody)}
}

// Expected returns the sequence number the next header must carry
func (r *Reader) Expected() uint16 { return r.expected }

// Decode reads from src until it would block, emitting every frame that
// completes on the way. It returns the number of bytes consumed. A nil error
// means src is drained; ErrPeerClosed, ErrSequenceMismatch, ErrOversize and
// read errors are fatal for the connection.
func (r *Reader) Decode(src io.Reader, emit EmitFunc) (int, error) {
	n, _, err := r.DecodeLimit(src, emit, 0)
	return n, err
}

// DecodeLimit is Decode bounded to roughly limit bytes: it stops after the
// read that reaches limit even if src has more. drained reports whether src
// would block. A limit <= 0 reads until src would block.
func (r *Reader) DecodeLimit(src io.Reader, emit EmitFunc, limit int) (n int, drained bool, err error) {
	if r.err != nil {
		return 0, false, r.err
	}
	if r.scratch == nil {
		r.scratch = make([]byte, readChunkSize)
	}

	total := 0
	for limit <= 0 || total < limit {
		m, rerr := src.Read(r.scratch)
		if m > 0 {
			total += m
			if ferr := r.Feed(r.scratch[:m], emit); ferr != nil {
				return total, false, ferr
			}
		}
		switch {
		case rerr == nil:
			continue
		case errors.Is(rerr, sock.ErrWouldBlock):
			return total, true, nil
		case errors.Is(rerr, io.EOF):
			r.err = ErrPeerClosed
			return total, false, r.err
		default:
			r.err = fmt.Errorf("codec: read: %w", rerr)
			return total, false, r.err
		}
	}
	return total, false, nil
}

// Feed decodes p, which may contain any number of partial or complete
// frames. Once Feed returned an error the Reader stays failed.
func (r *Reader) Feed(p []byte, emit EmitFunc) error {
	if r.err != nil {
		return r.err
	}

	for len(p) > 0 {
		if !r.inBody {
			n := copy(r.hdr[r.hdrFill:], p)
			r.hdrFill += n
			p = p[n:]
			if r.hdrFill < HeaderSize {
				return nil
			}
			r.hdrFill = 0
			if err := r.beginFrame(emit); err != nil {
				r.err = err
				return err
			}
			continue
		}

		n := copy(r.body[r.bodyFill:], p)
		r.bodyFill += n
		p = p[n:]
		if r.bodyFill == len(r.body) {
			r.finishFrame(emit)
		}
	}
	return nil
}

// beginFrame validates a complete header and either emits an empty frame
// or prepares the body buffer
func (r *Reader) beginFrame(emit EmitFunc) error {
	h := ParseHeader(r.hdr[:])
	if h.Sequence != r.expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceMismatch, r.expected, h.Sequence)
	}
	if h.BodySize > r.maxBody {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrOversize, h.BodySize, r.maxBody)
	}
	r.expected = nextSequence(r.expected)
	r.cur = h

	if h.BodySize == 0 {
		r.body = []byte{}
		r.finishFrame(emit)
		return nil
	}
	r.body = make([]byte, h.BodySize)
	r.bodyFill = 0
	r.inBody = true
	return nil
}

func (r *Reader) finishFrame(emit EmitFunc) {
	env := common.Envelope{
		Correlation: r.cur.Correlation,
		ProtocolID:  r.cur.ProtocolID,
		Extension:   r.cur.Extension,
		Body:        r.body,
	}
	r.body = nil
	r.bodyFill = 0
	r.inBody = false
	emit(env)
}
