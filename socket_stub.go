//go:build !unix

package bridge

import (
	"net"

	"github.com/sagernet/sing-bridge/pump"

	E "github.com/sagernet/sing/common/exceptions"
)

type socketConn interface {
	pump.Socket
	WaitRead() error
	WaitWrite() error
}

func newSocket(conn *net.TCPConn) (socketConn, error) {
	conn.Close()
	return nil, E.New("platform not supported")
}
