package bridge

import (
	"context"
	"net"

	"github.com/sagernet/sing-bridge/stream"

	"github.com/google/uuid"
	E "github.com/sagernet/sing/common/exceptions"
	M "github.com/sagernet/sing/common/metadata"
)

// Route is one installed client route: a destination that Connect may dial.
type Route struct {
	id          uuid.UUID
	destination M.Socksaddr
}

func (r *Route) ID() uuid.UUID {
	return r.id
}

func (r *Route) Destination() M.Socksaddr {
	return r.destination
}

// InstallClientRoute registers a dialable destination.
func (s *Service) InstallClientRoute(destination M.Socksaddr) *Route {
	s.counters.Routes.Add(1)
	return &Route{
		id:          uuid.New(),
		destination: destination,
	}
}

// Connect dials the route's destination and bridges the new socket. input
// receives the bytes the destination sends back. On dial failure input is
// reset and no pumps are created.
//
// The returned connection starts with a zero read window; grant on it before
// expecting any reply data.
func (s *Service) Connect(ctx context.Context, route *Route, input stream.Input) (*Conn, error) {
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", route.destination.String())
	if err != nil {
		input.Reset()
		return nil, E.Cause(err, "connect ", route.destination)
	}
	socket, err := newSocket(netConn.(*net.TCPConn))
	if err != nil {
		input.Reset()
		netConn.Close()
		return nil, err
	}
	s.counters.Streams.Add(1)
	conn := newConn(s, s.logger, socket, s.allocateStreamID(), s.allocateStreamID())
	s.logger.Debug("outbound to ", route.destination, " as connection ", conn.ID())
	conn.start(input)
	return conn, nil
}
