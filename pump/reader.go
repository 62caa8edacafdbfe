package pump

import (
	"errors"
	"io"

	"github.com/sagernet/sing-bridge/stream"
	"github.com/sagernet/sing-bridge/window"

	"github.com/sagernet/sing/common/buf"
	"github.com/sirupsen/logrus"
)

// DefaultReadCap bounds how many bytes one readiness notification may pull off
// the socket, independently of the window, so a fast socket cannot monopolize
// the loop.
const DefaultReadCap = buf.BufferSize

type ReadState uint8

const (
	ReadIdle ReadState = iota
	ReadReading
	ReadEndOfStream
	ReadReset
)

func (s ReadState) String() string {
	switch s {
	case ReadIdle:
		return "idle"
	case ReadReading:
		return "reading"
	case ReadEndOfStream:
		return "end-of-stream"
	case ReadReset:
		return "reset"
	default:
		return "unknown"
	}
}

type ReaderOptions struct {
	Socket   Socket
	Window   *window.Tracker
	Input    stream.Input
	Logger   *logrus.Entry
	StreamID int64

	// WatchRead requests one socket-readable notification. The pump requests
	// it only after the socket reported no data: readiness edges are consumed
	// by the wait, so waiting with bytes still buffered would strand them.
	WatchRead func()
	// RetryRead requests another read pass without waiting for socket
	// readiness, for when the window or the read cap kept bytes back.
	// Defaults to WatchRead.
	RetryRead func()
	// Fault reports a protocol violation that must reset the peer direction
	// of the connection as well.
	Fault func(err error)
	// ReadCap overrides DefaultReadCap when positive.
	ReadCap int
}

// Reader moves socket bytes into the internal stream, never forwarding more
// than the window permits. All methods run on the owning worker loop.
type Reader struct {
	socket   Socket
	window   *window.Tracker
	input    stream.Input
	logger   *logrus.Entry
	streamID int64

	watchRead func()
	retryRead func()
	fault     func(err error)
	readCap   int

	state ReadState
}

func NewReader(options ReaderOptions) *Reader {
	reader := &Reader{
		socket:    options.Socket,
		window:    options.Window,
		input:     options.Input,
		logger:    options.Logger,
		streamID:  options.StreamID,
		watchRead: options.WatchRead,
		retryRead: options.RetryRead,
		fault:     options.Fault,
		readCap:   options.ReadCap,
	}
	if reader.watchRead == nil {
		reader.watchRead = func() {}
	}
	if reader.retryRead == nil {
		reader.retryRead = reader.watchRead
	}
	if reader.fault == nil {
		reader.fault = reader.HandleFault
	}
	if reader.readCap <= 0 {
		reader.readCap = DefaultReadCap
	}
	return reader
}

func (r *Reader) State() ReadState {
	return r.state
}

// HandleReadable performs one bounded read and forwards the result. A socket
// with no data right now stays in Reading and waits for the next notification;
// a zero window parks the direction until the next grant retries the read.
func (r *Reader) HandleReadable() {
	switch r.state {
	case ReadEndOfStream, ReadReset:
		return
	case ReadIdle:
		r.state = ReadReading
	}
	batch := r.window.Remaining()
	if batch == 0 {
		return
	}
	if batch > r.readCap {
		batch = r.readCap
	}
	buffer := buf.NewSize(batch)
	defer buffer.Release()
	n, err := r.socket.Read(buffer.FreeBytes())
	if n > 0 {
		if consumeErr := r.window.Consume(n); consumeErr != nil {
			// Forwarding past the granted window is a protocol violation,
			// fatal to the whole connection.
			r.fault(consumeErr)
			return
		}
		buffer.Truncate(n)
		if dataErr := r.input.Data(buffer.Bytes()); dataErr != nil {
			r.state = ReadReset
			return
		}
	}
	switch {
	case err == nil:
		if n == 0 {
			// Socket drained: safe to wait for the next readiness edge.
			r.watchRead()
		} else if r.window.Remaining() > 0 {
			// The cap may have left bytes behind; go around again.
			r.retryRead()
		}
		// Zero window: parked until the next grant retries.
	case errors.Is(err, io.EOF):
		r.input.End()
		r.state = ReadEndOfStream
	default:
		if r.logger != nil {
			r.logger.Trace("stream ", r.streamID, " read failed: ", err)
		}
		r.input.Reset()
		r.state = ReadReset
	}
}

// HandleGrant applies a window update from the internal protocol.
func (r *Reader) HandleGrant(n int) {
	switch r.state {
	case ReadEndOfStream, ReadReset:
		return
	}
	r.window.Grant(n)
	if r.state == ReadReading {
		// The socket may hold bytes the old window kept back; read now
		// instead of waiting for an edge that already passed.
		r.retryRead()
	}
}

// HandleReset stops forwarding after the runtime abandoned the stream. The
// socket sees no further reads from this direction.
func (r *Reader) HandleReset() {
	switch r.state {
	case ReadEndOfStream, ReadReset:
		return
	}
	r.state = ReadReset
}

// HandleFault resets this direction after a fatal failure on the peer
// direction of the same connection.
func (r *Reader) HandleFault(err error) {
	switch r.state {
	case ReadEndOfStream, ReadReset:
		return
	}
	r.input.Reset()
	r.state = ReadReset
}
