// Package counter holds the process-wide tallies of the transport: streams
// established, routes installed and overflow events. The handle is passed into
// the acceptor, the connector and the write pumps at construction instead of
// living in package-level globals.
package counter

import "github.com/sagernet/sing/common/atomic"

type Counters struct {
	Streams   atomic.Uint64
	Routes    atomic.Uint64
	Overflows atomic.Uint64
}

type Values struct {
	Streams   uint64
	Routes    uint64
	Overflows uint64
}

func New() *Counters {
	return &Counters{}
}

func (c *Counters) Snapshot() Values {
	return Values{
		Streams:   c.Streams.Load(),
		Routes:    c.Routes.Load(),
		Overflows: c.Overflows.Load(),
	}
}
