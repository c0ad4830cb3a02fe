package sock

import (
	"fmt"
	"golang.org/x/sys/unix"
	"net"
	"strconv"
)

// --------------------------------------------------------------------------
// Address resolution
// --------------------------------------------------------------------------

// ResolveTCP resolves host:port into a socket address and its address family
func ResolveTCP(endpoint string) (unix.Sockaddr, int, error) {
	addr, err := net.ResolveTCPAddr("tcp", endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("resolve %q: %w", endpoint, err)
	}
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa, unix.AF_INET6, nil
}

// ResolveUnix builds the socket address of a unix domain socket path
func ResolveUnix(path string) (unix.Sockaddr, int, error) {
	if path == "" {
		return nil, 0, fmt.Errorf("empty unix socket path")
	}
	return &unix.SockaddrUnix{Name: path}, unix.AF_UNIX, nil
}

// AddrString formats a socket address for logging
func AddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	default:
		return "?"
	}
}

// LocalAddr returns the bound address of fd (useful after binding port 0)
func LocalAddr(fd int) (string, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return "", err
	}
	return AddrString(sa), nil
}

// --------------------------------------------------------------------------
// Socket lifecycle
// --------------------------------------------------------------------------

// newSocket creates a non-blocking close-on-exec stream socket
func newSocket(family int) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	return fd, nil
}

// Listen creates a non-blocking listening socket bound to sa.
// A backlog <= 0 uses SOMAXCONN.
func Listen(sa unix.Sockaddr, family, backlog int) (int, error) {
	fd, err := newSocket(family)
	if err != nil {
		return -1, err
	}
	if family != unix.AF_UNIX {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("set SO_REUSEADDR: %w", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", AddrString(sa), err)
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", AddrString(sa), err)
	}
	return fd, nil
}

// Accept takes one pending connection off a listening socket. The returned
// descriptor is already non-blocking. ErrWouldBlock means the backlog is empty.
func Accept(lfd int) (int, unix.Sockaddr, error) {
	for {
		fd, sa, err := unix.Accept(lfd)
		switch {
		case err == nil:
			unix.CloseOnExec(fd)
			if err := unix.SetNonblock(fd, true); err != nil {
				unix.Close(fd)
				return -1, nil, fmt.Errorf("set nonblock: %w", err)
			}
			return fd, sa, nil
		case err == unix.EINTR || err == unix.ECONNABORTED:
			continue
		case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
			return -1, nil, ErrWouldBlock
		default:
			return -1, nil, err
		}
	}
}

// Connect starts a non-blocking connect to sa. When inProgress is true the
// connect completes asynchronously and the result must be read with
// SocketError once fd reports writable.
func Connect(sa unix.Sockaddr, family int) (fd int, inProgress bool, err error) {
	fd, err = newSocket(family)
	if err != nil {
		return -1, false, err
	}
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		return fd, false, nil
	case unix.EINPROGRESS, unix.EALREADY:
		return fd, true, nil
	default:
		unix.Close(fd)
		return -1, false, fmt.Errorf("connect %s: %w", AddrString(sa), err)
	}
}

// SocketError returns the pending error of fd (SO_ERROR), nil if there is none
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("get SO_ERROR: %w", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// Close closes fd, ignoring EINTR
func Close(fd int) error {
	if err := unix.Close(fd); err != nil && err != unix.EINTR {
		return err
	}
	return nil
}

// --------------------------------------------------------------------------
// Socket options
// --------------------------------------------------------------------------

// SetNoDelay toggles Nagle's algorithm on a tcp socket
func SetNoDelay(fd int, noDelay bool) error {
	v := 0
	if noDelay {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}
	return nil
}

// SetBuffers applies the kernel receive / send buffer sizes, 0 keeps the OS default
func SetBuffers(fd, readSize, writeSize int) error {
	if readSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, readSize); err != nil {
			return fmt.Errorf("set SO_RCVBUF: %w", err)
		}
	}
	if writeSize > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, writeSize); err != nil {
			return fmt.Errorf("set SO_SNDBUF: %w", err)
		}
	}
	return nil
}
