package pump

import (
	"errors"

	"github.com/sagernet/sing-bridge/counter"
	"github.com/sagernet/sing-bridge/slot"

	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sirupsen/logrus"
)

// WriteSpinCount bounds the synchronous retries of a partial write before the
// remainder is copied into a pool slot. A socket that briefly rejects a write
// usually becomes writable again within microseconds, so an immediate retry
// avoids the buffering round-trip, but the ceiling keeps one stalled stream
// from starving the rest of the loop.
const WriteSpinCount = 16

type WriteState uint8

const (
	WriteIdle WriteState = iota
	WriteWriting
	WriteDraining
	WriteClosed
	WriteReset
)

func (s WriteState) String() string {
	switch s {
	case WriteIdle:
		return "idle"
	case WriteWriting:
		return "writing"
	case WriteDraining:
		return "draining"
	case WriteClosed:
		return "closed"
	case WriteReset:
		return "reset"
	default:
		return "unknown"
	}
}

var ErrDataAfterEnd = E.New("data after end of stream")

type WriterOptions struct {
	Socket   Socket
	Pool     *slot.Pool
	Counters *counter.Counters
	Logger   *logrus.Entry
	StreamID int64

	// Reset forwards a reset signal for this stream toward the runtime.
	Reset func(err error)
	// Fault reports a protocol violation that must reset the peer direction
	// of the connection as well.
	Fault func(err error)
	// WatchWrite requests one socket-writable notification. The pump requests
	// it only after a write accepted nothing: readiness edges are consumed by
	// the wait, and the kernel only emits a new one on a full-to-writable
	// transition of the send buffer.
	WatchWrite func()
	// SpinCount overrides WriteSpinCount when positive.
	SpinCount int
}

// Writer moves internal-stream data onto a socket. All methods run on the
// owning worker loop.
type Writer struct {
	socket   Socket
	pool     *slot.Pool
	counters *counter.Counters
	logger   *logrus.Entry
	streamID int64

	reset      func(err error)
	fault      func(err error)
	watchWrite func()
	spinCount  int

	state       WriteState
	slot        *slot.Slot
	endPending  bool
	endViolated bool
}

func NewWriter(options WriterOptions) *Writer {
	writer := &Writer{
		socket:     options.Socket,
		pool:       options.Pool,
		counters:   options.Counters,
		logger:     options.Logger,
		streamID:   options.StreamID,
		reset:      options.Reset,
		fault:      options.Fault,
		watchWrite: options.WatchWrite,
		spinCount:  options.SpinCount,
	}
	if writer.spinCount <= 0 {
		writer.spinCount = WriteSpinCount
	}
	if writer.reset == nil {
		writer.reset = func(error) {}
	}
	if writer.fault == nil {
		writer.fault = func(error) {}
	}
	if writer.watchWrite == nil {
		writer.watchWrite = func() {}
	}
	return writer
}

func (w *Writer) State() WriteState {
	return w.state
}

// HandleData accepts one data frame from the internal stream. A frame never
// exceeds the slot size: the pump caps what it accepts before the socket can
// be checked for writability, so the buffered remainder always fits one slot.
func (w *Writer) HandleData(data []byte) {
	switch w.state {
	case WriteReset:
		return
	case WriteClosed:
		// Traffic after end-of-stream cannot be reconciled with a closed
		// destination: fatal for the whole connection.
		w.fault(ErrDataAfterEnd)
		return
	}
	if len(data) == 0 {
		return
	}
	if w.slot != nil {
		if w.endPending {
			// Traffic after end of stream while the tail still drains: the
			// violation resets the stream, the already accepted bytes still
			// reach the socket.
			if !w.endViolated {
				w.endViolated = true
				w.reset(ErrDataAfterEnd)
			}
			return
		}
		if len(data) > w.slot.FreeLen() {
			w.overflow()
			return
		}
		w.slot.Write(data)
		return
	}
	if len(data) > w.pool.SlotSize() {
		w.fault(E.New("data frame of ", len(data), " bytes exceeds slot size ", w.pool.SlotSize()))
		return
	}
	remaining := data
	for spin := 0; spin < w.spinCount; spin++ {
		n, err := w.socket.Write(remaining)
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			w.failWrite(err)
			return
		}
		remaining = remaining[n:]
		if len(remaining) == 0 {
			w.state = WriteWriting
			return
		}
	}
	acquired, err := w.pool.Acquire(w.streamID)
	if err != nil {
		if errors.Is(err, slot.ErrExhausted) {
			w.overflow()
		} else {
			w.fault(err)
		}
		return
	}
	acquired.Write(remaining)
	w.slot = acquired
	w.state = WriteDraining
	// The spins may have ended on partial accepts rather than a genuine
	// would-block; flush once more so the socket wait only starts with the
	// send buffer actually full.
	w.HandleWritable()
}

// HandleWritable flushes pending slot bytes after a writable notification.
func (w *Writer) HandleWritable() {
	if w.state != WriteDraining {
		return
	}
	for !w.slot.IsEmpty() {
		n, err := w.socket.Write(w.slot.Bytes())
		if err != nil && !errors.Is(err, ErrWouldBlock) {
			w.failWrite(err)
			return
		}
		if n == 0 {
			w.watchWrite()
			return
		}
		w.slot.Advance(n)
	}
	w.pool.Release(w.slot)
	w.slot = nil
	if w.endPending {
		w.socket.CloseWrite()
		w.state = WriteClosed
		return
	}
	w.state = WriteWriting
}

// HandleEnd processes end-of-stream from the internal stream. With a slot
// still draining the half-close is deferred until every accepted byte reached
// the socket.
func (w *Writer) HandleEnd() {
	switch w.state {
	case WriteReset, WriteClosed:
		return
	}
	if w.slot != nil {
		w.endPending = true
		return
	}
	w.socket.CloseWrite()
	w.state = WriteClosed
}

// HandleReset processes a reset from the internal stream: immediate and
// non-negotiable, pending bytes are discarded, the socket is aborted.
func (w *Writer) HandleReset() {
	switch w.state {
	case WriteReset, WriteClosed:
		return
	}
	w.releaseSlot()
	w.socket.Abort()
	w.state = WriteReset
}

// HandleFault resets this direction because the peer direction failed fatally
// or the connection saw a protocol violation. Unlike HandleReset it also
// signals reset toward the runtime, and it fires even from Closed so a
// violation after end-of-stream still reaches the originator.
func (w *Writer) HandleFault(err error) {
	if w.state == WriteReset {
		return
	}
	w.releaseSlot()
	w.socket.Abort()
	w.state = WriteReset
	w.reset(err)
}

func (w *Writer) overflow() {
	w.counters.Overflows.Add(1)
	if w.logger != nil {
		w.logger.Debug("stream ", w.streamID, " reset: ", slot.ErrExhausted)
	}
	w.releaseSlot()
	w.socket.Close()
	w.state = WriteReset
	w.reset(slot.ErrExhausted)
}

func (w *Writer) failWrite(err error) {
	if w.logger != nil {
		w.logger.Trace("stream ", w.streamID, " write failed: ", err)
	}
	w.releaseSlot()
	w.state = WriteReset
	w.reset(err)
}

func (w *Writer) releaseSlot() {
	if w.slot == nil {
		return
	}
	w.pool.Release(w.slot)
	w.slot = nil
}
