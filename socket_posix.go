//go:build unix

package bridge

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/sagernet/sing-bridge/pump"

	E "github.com/sagernet/sing/common/exceptions"
	"golang.org/x/sys/unix"
)

// socketConn extends the pump-facing socket capability with the readiness
// waits the watchers block on. The runtime registers sockets edge-triggered:
// each wait consumes one readiness edge, so a wait may only start after the
// socket reported would-block, never while bytes are known to be pending.
type socketConn interface {
	pump.Socket
	WaitRead() error
	WaitWrite() error
}

// tcpSocket adapts a kernel TCP socket to the non-blocking pump contract by
// issuing raw reads and writes against the fd, so EAGAIN surfaces instead of
// parking the goroutine in the runtime poller.
type tcpSocket struct {
	conn *net.TCPConn
	raw  syscall.RawConn
}

func newSocket(conn *net.TCPConn) (socketConn, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, E.Cause(err, "raw connection")
	}
	return &tcpSocket{conn: conn, raw: raw}, nil
}

func (s *tcpSocket) Read(p []byte) (int, error) {
	var (
		n       int
		readErr error
	)
	controlErr := s.raw.Control(func(fd uintptr) {
		n, readErr = unix.Read(int(fd), p)
	})
	if controlErr != nil {
		return 0, controlErr
	}
	if n < 0 {
		n = 0
	}
	if readErr != nil {
		if errors.Is(readErr, unix.EAGAIN) || errors.Is(readErr, unix.EWOULDBLOCK) {
			return 0, nil
		}
		return 0, readErr
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *tcpSocket) Write(p []byte) (int, error) {
	var (
		n        int
		writeErr error
	)
	controlErr := s.raw.Control(func(fd uintptr) {
		n, writeErr = unix.Write(int(fd), p)
	})
	if controlErr != nil {
		return 0, controlErr
	}
	if n < 0 {
		n = 0
	}
	if writeErr != nil {
		if errors.Is(writeErr, unix.EAGAIN) || errors.Is(writeErr, unix.EWOULDBLOCK) {
			return n, pump.ErrWouldBlock
		}
		return n, writeErr
	}
	return n, nil
}

func (s *tcpSocket) CloseWrite() error {
	return s.conn.CloseWrite()
}

func (s *tcpSocket) Close() error {
	return s.conn.Close()
}

func (s *tcpSocket) Abort() error {
	s.conn.SetLinger(0)
	return s.conn.Close()
}

func (s *tcpSocket) WaitRead() error {
	ready := false
	return s.raw.Read(func(uintptr) bool {
		if !ready {
			ready = true
			return false
		}
		return true
	})
}

func (s *tcpSocket) WaitWrite() error {
	ready := false
	return s.raw.Write(func(uintptr) bool {
		if !ready {
			ready = true
			return false
		}
		return true
	})
}
