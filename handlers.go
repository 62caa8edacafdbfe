package bridge

import (
	"context"

	"github.com/sagernet/sing-bridge/stream"

	M "github.com/sagernet/sing/common/metadata"
)

// DefaultHandlerWindow is the read window the built-in handlers grant up
// front and replenish as they consume.
const DefaultHandlerWindow = 256 * 1024

// EchoHandler writes every received byte back to the sender.
type EchoHandler struct {
	Window int
}

func (h *EchoHandler) NewBridgeConn(ctx context.Context, conn *Conn, metadata M.Metadata) (stream.Input, error) {
	conn.Grant(handlerWindow(h.Window))
	return &echoInput{conn}, nil
}

type echoInput struct {
	conn *Conn
}

func (i *echoInput) Data(p []byte) error {
	i.conn.Write(p)
	i.conn.Grant(len(p))
	return nil
}

func (i *echoInput) End() error {
	i.conn.End()
	return nil
}

func (i *echoInput) Reset() error {
	i.conn.Reset()
	return nil
}

// DiscardHandler consumes and drops everything, then half-closes back when
// the sender finishes.
type DiscardHandler struct {
	Window int
}

func (h *DiscardHandler) NewBridgeConn(ctx context.Context, conn *Conn, metadata M.Metadata) (stream.Input, error) {
	conn.Grant(handlerWindow(h.Window))
	return &discardInput{conn: conn}, nil
}

type discardInput struct {
	conn *Conn
}

func (i *discardInput) Data(p []byte) error {
	i.conn.Grant(len(p))
	return nil
}

func (i *discardInput) End() error {
	i.conn.End()
	return nil
}

func (i *discardInput) Reset() error {
	i.conn.Reset()
	return nil
}

// RelayHandler bridges each inbound connection to a fresh outbound connection
// on the given client route, piping bytes and lifecycle signals both ways.
type RelayHandler struct {
	Service *Service
	Route   *Route
	Window  int
}

func NewRelayHandler(service *Service, destination M.Socksaddr) *RelayHandler {
	return &RelayHandler{
		Service: service,
		Route:   service.InstallClientRoute(destination),
	}
}

func (h *RelayHandler) NewBridgeConn(ctx context.Context, conn *Conn, metadata M.Metadata) (stream.Input, error) {
	window := handlerWindow(h.Window)
	returnPipe := &pipeInput{destination: conn}
	outbound, err := h.Service.Connect(ctx, h.Route, returnPipe)
	if err != nil {
		return nil, err
	}
	returnPipe.source = outbound
	conn.OnWriteReset(func(error) {
		outbound.Reset()
	})
	outbound.OnWriteReset(func(error) {
		conn.Reset()
	})
	outbound.Grant(window)
	conn.Grant(window)
	return &pipeInput{source: conn, destination: outbound}, nil
}

// pipeInput forwards one direction of a relay. Each consumed frame replenishes
// the source window, so the relay never stalls under its own flow control.
type pipeInput struct {
	source      *Conn
	destination *Conn
}

func (i *pipeInput) Data(p []byte) error {
	i.destination.Write(p)
	i.source.Grant(len(p))
	return nil
}

func (i *pipeInput) End() error {
	i.destination.End()
	return nil
}

func (i *pipeInput) Reset() error {
	i.destination.Reset()
	return nil
}

func handlerWindow(window int) int {
	if window <= 0 {
		return DefaultHandlerWindow
	}
	return window
}
