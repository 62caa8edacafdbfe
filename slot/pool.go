// Package slot implements the bounded buffer-slot pool that backs partial
// writes. The pool divides a fixed byte capacity into fixed-size slots and
// lends at most one slot to a stream at a time. Acquisition is all-or-nothing:
// when no slot is free the call fails immediately with ErrExhausted so the
// caller can shed the stream instead of blocking.
//
// The pool is confined to a single worker loop and is not safe for concurrent
// use.
package slot

import (
	E "github.com/sagernet/sing/common/exceptions"
)

var ErrExhausted = E.New("buffer slot pool exhausted")

type Pool struct {
	slotSize int
	free     []*Slot
	owned    map[int64]*Slot
}

func NewPool(capacity int, slotSize int) (*Pool, error) {
	if capacity <= 0 || slotSize <= 0 {
		return nil, E.New("invalid pool capacity ", capacity, "/", slotSize)
	}
	if capacity%slotSize != 0 {
		return nil, E.New("pool capacity ", capacity, " not divisible by slot size ", slotSize)
	}
	pool := &Pool{
		slotSize: slotSize,
		owned:    make(map[int64]*Slot),
	}
	for index := 0; index < capacity/slotSize; index++ {
		pool.free = append(pool.free, &Slot{data: make([]byte, slotSize)})
	}
	return pool, nil
}

func (p *Pool) SlotSize() int {
	return p.slotSize
}

func (p *Pool) FreeSlots() int {
	return len(p.free)
}

func (p *Pool) Acquire(streamID int64) (*Slot, error) {
	if _, loaded := p.owned[streamID]; loaded {
		return nil, E.New("stream ", streamID, " already owns a slot")
	}
	if len(p.free) == 0 {
		return nil, ErrExhausted
	}
	acquired := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	acquired.owner = streamID
	p.owned[streamID] = acquired
	return acquired, nil
}

func (p *Pool) Release(slot *Slot) {
	owned, loaded := p.owned[slot.owner]
	if !loaded || owned != slot {
		return
	}
	delete(p.owned, slot.owner)
	slot.start = 0
	slot.end = 0
	slot.owner = 0
	p.free = append(p.free, slot)
}

type Slot struct {
	data  []byte
	start int
	end   int
	owner int64
}

func (s *Slot) Owner() int64 {
	return s.owner
}

func (s *Slot) Len() int {
	return s.end - s.start
}

func (s *Slot) FreeLen() int {
	return len(s.data) - s.Len()
}

func (s *Slot) IsEmpty() bool {
	return s.start == s.end
}

func (s *Slot) Bytes() []byte {
	return s.data[s.start:s.end]
}

// Write appends data behind any pending bytes, compacting first so the full
// slot capacity stays usable after partial flushes. It reports how many bytes
// were accepted.
func (s *Slot) Write(data []byte) int {
	if s.start > 0 {
		copy(s.data, s.data[s.start:s.end])
		s.end -= s.start
		s.start = 0
	}
	accepted := copy(s.data[s.end:], data)
	s.end += accepted
	return accepted
}

// Advance marks n pending bytes as flushed to the socket.
func (s *Slot) Advance(n int) {
	s.start += n
	if s.start == s.end {
		s.start = 0
		s.end = 0
	}
}
