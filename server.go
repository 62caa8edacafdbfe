package bridge

import (
	"context"
	"net"
	"net/netip"

	"github.com/sagernet/sing-bridge/stream"

	"github.com/google/uuid"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
	"github.com/sirupsen/logrus"
)

// Handler accepts bridged inbound connections. It returns the runtime stream
// that will receive the socket's bytes, or an error to reject the connection
// before any pump starts. Grant must be called on conn before any data can
// flow; doing so inside NewBridgeConn is allowed.
type Handler interface {
	NewBridgeConn(ctx context.Context, conn *Conn, metadata M.Metadata) (stream.Input, error)
}

// Listener binds one server route: a TCP listen address plus the handler that
// accepts its connections.
type Listener struct {
	service  *Service
	handler  Handler
	logger   *logrus.Entry
	routeID  uuid.UUID
	bind     netip.AddrPort
	listener *net.TCPListener
}

// InstallServerRoute registers a listen address with its handler. If the
// service is already started the listener binds immediately, otherwise it
// binds on Start.
func (s *Service) InstallServerRoute(bind netip.AddrPort, handler Handler) (*Listener, error) {
	if handler == nil {
		return nil, E.New("missing handler")
	}
	listener := &Listener{
		service: s,
		handler: handler,
		logger:  s.logger,
		routeID: uuid.New(),
		bind:    bind,
	}
	s.access.Lock()
	if s.closed {
		s.access.Unlock()
		return nil, E.New("service closed")
	}
	s.listeners = append(s.listeners, listener)
	started := s.started
	s.access.Unlock()
	s.counters.Routes.Add(1)
	if started {
		if err := listener.Start(); err != nil {
			return nil, err
		}
	}
	return listener, nil
}

func (l *Listener) RouteID() uuid.UUID {
	return l.routeID
}

// Addr reports the bound address, useful when the route asked for port 0.
func (l *Listener) Addr() netip.AddrPort {
	if l.listener == nil {
		return l.bind
	}
	return M.SocksaddrFromNet(l.listener.Addr()).AddrPort()
}

func (l *Listener) Start() error {
	if l.listener != nil {
		return nil
	}
	tcpListener, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(l.bind))
	if err != nil {
		return E.Cause(err, "listen ", l.bind)
	}
	l.listener = tcpListener
	l.logger.Info("route ", l.routeID, " listening at ", tcpListener.Addr())
	go l.loopAccept(tcpListener)
	return nil
}

func (l *Listener) Close() error {
	if l.listener == nil {
		return nil
	}
	err := l.listener.Close()
	l.listener = nil
	return err
}

func (l *Listener) loopAccept(tcpListener *net.TCPListener) {
	for {
		tcpConn, err := tcpListener.AcceptTCP()
		if err != nil {
			l.logger.Debug("listener at ", l.bind, " closed: ", err)
			return
		}
		go l.accept(tcpConn)
	}
}

func (l *Listener) accept(tcpConn *net.TCPConn) {
	metadata := M.Metadata{
		Protocol:    "tcp",
		Source:      M.SocksaddrFromNet(tcpConn.RemoteAddr()),
		Destination: M.SocksaddrFromNet(tcpConn.LocalAddr()),
	}
	socket, err := newSocket(tcpConn)
	if err != nil {
		l.logger.Warn("inbound from ", metadata.Source, ": ", err)
		tcpConn.Close()
		return
	}
	s := l.service
	s.counters.Streams.Add(1)
	conn := newConn(s, l.logger, socket, s.allocateStreamID(), s.allocateStreamID())
	input, err := l.handler.NewBridgeConn(context.Background(), conn, metadata)
	if err != nil {
		l.logger.Debug("inbound from ", metadata.Source, " rejected: ", err)
		conn.abort()
		return
	}
	l.logger.Debug("inbound from ", metadata.Source, " as connection ", conn.ID(),
		" streams ", conn.StreamID(stream.DirectionInbound), "/", conn.StreamID(stream.DirectionOutbound))
	conn.start(input)
}
