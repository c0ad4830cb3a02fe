package codec

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dTCP/rpc/common"
	"github.com/ValentinKolb/dTCP/rpc/transport/sock"
	"io"
)

// WriteResult is the outcome of one Writer.Write call
type WriteResult uint8

const (
	// Finish means the frame was written completely
	Finish WriteResult = iota
	// BufferFull means the socket would block, progress is kept for the next call
	BufferFull
	// Error means the connection failed
	Error
)

func (r WriteResult) String() string {
	switch r {
	case Finish:
		return "finish"
	case BufferFull:
		return "buffer-full"
	default:
		return "error"
	}
}

// Writer is the encode state of one connection
type Writer struct {
	next uint16

	hdr    [HeaderSize]byte
	hdrOff int
	body   []byte
	// bodyOff is the number of body bytes already written
	bodyOff int
	active  bool
}

// Pending reports whether a frame is partially written
func (w *Writer) Pending() bool { return w.active }

// Next returns the sequence number of the next frame that will be started
func (w *Writer) Next() uint16 { return w.next }

// Write writes the frame of env to dst. While a frame is pending (the last
// call returned BufferFull) env must be the same envelope, it is resumed from
// the stored offsets. The header is always written completely before the body.
func (w *Writer) Write(dst io.Writer, env *common.Envelope) (WriteResult, error) {
	if !w.active {
		if len(env.Body) > MaxBodySize {
			return Error, fmt.Errorf("%w: %d bytes", ErrOversize, len(env.Body))
		}
		PutHeader(w.hdr[:], w.next, env)
		w.next = nextSequence(w.next)
		w.hdrOff = 0
		w.body = env.Body
		w.bodyOff = 0
		w.active = true
	}

	for w.hdrOff < HeaderSize {
		n, err := dst.Write(w.hdr[w.hdrOff:])
		w.hdrOff += n
		if res, err := w.check(n, err); res != Finish {
			return res, err
		}
	}

	for w.bodyOff < len(w.body) {
		n, err := dst.Write(w.body[w.bodyOff:])
		w.bodyOff += n
		if res, err := w.check(n, err); res != Finish {
			return res, err
		}
	}

	w.active = false
	w.body = nil
	return Finish, nil
}

// check classifies the result of a single write, Finish means keep going
func (w *Writer) check(n int, err error) (WriteResult, error) {
	switch {
	case err == nil && n > 0:
		return Finish, nil
	case err == nil, errors.Is(err, sock.ErrWouldBlock):
		return BufferFull, nil
	default:
		w.active = false
		w.body = nil
		return Error, fmt.Errorf("codec: write: %w", err)
	}
}
