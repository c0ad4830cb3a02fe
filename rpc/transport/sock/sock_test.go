package sock

import (
	"errors"
	"golang.org/x/sys/unix"
	"io"
	"testing"
	"time"
)

func pair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	return fds[0], fds[1]
}

func TestReadWouldBlockAndEOF(t *testing.T) {
	a, b := pair(t)
	defer Close(a)

	buf := make([]byte, 16)
	if _, err := Read(a, buf); !errors.Is(err, ErrWouldBlock) {
		t.Fatalf("Expected ErrWouldBlock on empty socket, got %v", err)
	}

	if n, err := Write(b, []byte("abc")); err != nil || n != 3 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	n, err := FD(a).Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Fatalf("Read() = %q, %v", buf[:n], err)
	}

	Close(b)
	if _, err := Read(a, buf); err != io.EOF {
		t.Errorf("Expected io.EOF after peer close, got %v", err)
	}
}

func TestWriteUntilWouldBlock(t *testing.T) {
	a, b := pair(t)
	defer Close(a)
	defer Close(b)

	chunk := make([]byte, 64*1024)
	total := 0
	for i := 0; i < 10000; i++ {
		n, err := Write(a, chunk)
		if IsWouldBlock(err) {
			if total == 0 {
				t.Fatalf("Expected some bytes to be written before blocking")
			}
			return
		}
		if err != nil {
			t.Fatalf("Write() failed: %v", err)
		}
		total += n
	}
	t.Fatalf("Socket never reported would-block after %d bytes", total)
}

func TestZeroLengthIO(t *testing.T) {
	a, b := pair(t)
	defer Close(a)
	defer Close(b)

	if n, err := Read(a, nil); n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v", n, err)
	}
	if n, err := Write(a, nil); n != 0 || err != nil {
		t.Errorf("Write(nil) = %d, %v", n, err)
	}
}

func TestListenAcceptConnect(t *testing.T) {
	sa, family, err := ResolveTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ResolveTCP() failed: %v", err)
	}
	lfd, err := Listen(sa, family, 0)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	defer Close(lfd)

	if _, _, err := Accept(lfd); !IsWouldBlock(err) {
		t.Fatalf("Expected empty backlog, got %v", err)
	}

	addr, err := LocalAddr(lfd)
	if err != nil {
		t.Fatalf("LocalAddr() failed: %v", err)
	}
	target, family, err := ResolveTCP(addr)
	if err != nil {
		t.Fatalf("ResolveTCP(%s) failed: %v", addr, err)
	}

	cfd, inProgress, err := Connect(target, family)
	if err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	defer Close(cfd)

	// poll until the handshake completes on both ends
	var afd int
	deadline := time.After(2 * time.Second)
	for {
		afd, _, err = Accept(lfd)
		if err == nil {
			break
		}
		if !IsWouldBlock(err) {
			t.Fatalf("Accept() failed: %v", err)
		}
		select {
		case <-deadline:
			t.Fatalf("Timeout waiting for connection")
		case <-time.After(time.Millisecond):
		}
	}
	defer Close(afd)

	if inProgress {
		fds := []unix.PollFd{{Fd: int32(cfd), Events: unix.POLLOUT}}
		if _, err := unix.Poll(fds, 2000); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	if err := SocketError(cfd); err != nil {
		t.Fatalf("SocketError() = %v", err)
	}

	if err := SetNoDelay(afd, true); err != nil {
		t.Errorf("SetNoDelay() failed: %v", err)
	}
	if err := SetBuffers(afd, 64*1024, 64*1024); err != nil {
		t.Errorf("SetBuffers() failed: %v", err)
	}

	if _, err := Write(cfd, []byte("ping")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	buf := make([]byte, 8)
	deadline = time.After(2 * time.Second)
	for {
		n, err := Read(afd, buf)
		if err == nil {
			if string(buf[:n]) != "ping" {
				t.Errorf("Expected ping, got %q", buf[:n])
			}
			return
		}
		if !IsWouldBlock(err) {
			t.Fatalf("Read() failed: %v", err)
		}
		select {
		case <-deadline:
			t.Fatalf("Timeout waiting for data")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestConnectRefused(t *testing.T) {
	// bind and immediately close to get a port nobody listens on
	sa, family, _ := ResolveTCP("127.0.0.1:0")
	lfd, err := Listen(sa, family, 0)
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	addr, _ := LocalAddr(lfd)
	Close(lfd)

	target, family, _ := ResolveTCP(addr)
	fd, inProgress, err := Connect(target, family)
	if err != nil {
		return // refused synchronously
	}
	defer Close(fd)
	if !inProgress {
		t.Fatalf("Expected connect to a closed port to fail or be in progress")
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	unix.Poll(fds, 2000)
	if err := SocketError(fd); err == nil {
		t.Errorf("Expected a pending socket error for a refused connect")
	}
}

func TestResolve(t *testing.T) {
	sa, family, err := ResolveTCP("[::1]:4242")
	if err != nil {
		t.Fatalf("ResolveTCP() failed: %v", err)
	}
	if family != unix.AF_INET6 || AddrString(sa) != "[::1]:4242" {
		t.Errorf("Unexpected resolution: family=%d addr=%s", family, AddrString(sa))
	}

	if _, _, err := ResolveUnix(""); err == nil {
		t.Errorf("Expected error for empty unix path")
	}
	sa, family, _ = ResolveUnix("/tmp/x.sock")
	if family != unix.AF_UNIX || AddrString(sa) != "/tmp/x.sock" {
		t.Errorf("Unexpected unix resolution: %s", AddrString(sa))
	}
}
