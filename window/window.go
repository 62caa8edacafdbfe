// Package window tracks the peer-granted byte allowance of a single stream.
// The tracker only ever grows on explicit window updates and shrinks by the
// exact byte count forwarded; consuming past the granted allowance is a
// protocol violation, not a transient condition.
//
// A tracker belongs to one read pump and is confined to its worker loop.
package window

import (
	E "github.com/sagernet/sing/common/exceptions"
)

var ErrWindowExceeded = E.New("stream window exceeded")

type Tracker struct {
	remaining int
}

func NewTracker(initial int) *Tracker {
	return &Tracker{remaining: initial}
}

func (t *Tracker) Remaining() int {
	return t.remaining
}

func (t *Tracker) Grant(n int) {
	if n <= 0 {
		return
	}
	t.remaining += n
}

func (t *Tracker) Consume(n int) error {
	if n > t.remaining {
		return E.Cause(ErrWindowExceeded, "consume ", n, " of ", t.remaining)
	}
	t.remaining -= n
	return nil
}
