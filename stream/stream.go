// Package stream defines the boundary between the transport core and the
// runtime that owns the internal protocol. The wire encoding of the protocol
// is not part of this module: signals cross as plain method calls.
package stream

// Input receives the signals one unidirectional stream can carry. The read
// pump emits Data/End/Reset toward the runtime through it; the runtime drives
// the write pump with the same signal set through the connection handle.
//
// Data does not retain p after it returns.
type Input interface {
	Data(p []byte) error
	End() error
	Reset() error
}

type Direction uint8

const (
	// DirectionInbound carries socket bytes toward the runtime.
	DirectionInbound Direction = iota
	// DirectionOutbound carries runtime bytes toward the socket.
	DirectionOutbound
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}
