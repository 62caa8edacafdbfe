package pump

import (
	E "github.com/sagernet/sing/common/exceptions"
)

// ErrWouldBlock reports that the socket send buffer accepted no bytes and the
// caller should wait for a writable notification.
var ErrWouldBlock = E.New("operation would block")

// Socket is the byte-stream capability the pumps drive. Implementations are
// non-blocking: Read returns (0, nil) when no data is available right now,
// io.EOF on a graceful peer close, and any other error on failure. Write may
// accept fewer bytes than offered, or none at all with ErrWouldBlock.
//
// The transport wraps real TCP connections into this interface; tests
// substitute deterministic fakes without touching the pump logic.
type Socket interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	// CloseWrite half-closes the outbound side after all accepted bytes
	// reached the socket.
	CloseWrite() error
	// Close shuts the socket down in an orderly fashion.
	Close() error
	// Abort discards any untransmitted data and hard-closes the socket.
	Abort() error
}
