package sock

import (
	"errors"
	"golang.org/x/sys/unix"
	"io"
)

// ErrWouldBlock is returned when a non-blocking call cannot make progress
var ErrWouldBlock = errors.New("sock: operation would block")

// Read reads into p, retrying on EINTR. End of stream is reported as io.EOF.
func Read(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// Write writes p once (short writes are possible), retrying on EINTR
func Write(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Write(fd, p)
		switch {
		case err == nil:
			return n, nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// FD adapts a non-blocking descriptor to io.Reader and io.Writer
type FD int

func (fd FD) Read(p []byte) (int, error)  { return Read(int(fd), p) }
func (fd FD) Write(p []byte) (int, error) { return Write(int(fd), p) }

// IsWouldBlock reports whether err signals a would-block condition
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}
