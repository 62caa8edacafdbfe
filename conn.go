package bridge

import (
	"sync"

	"github.com/sagernet/sing-bridge/log"
	"github.com/sagernet/sing-bridge/pump"
	"github.com/sagernet/sing-bridge/stream"
	"github.com/sagernet/sing-bridge/window"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is one bridged TCP connection: a socket, a read pump forwarding socket
// bytes to the runtime and a write pump forwarding runtime bytes to the
// socket. The two pumps share nothing but the socket handle; a fatal failure
// on one side reaches the other as an explicit fault transition, not a shared
// flag.
//
// The exported methods make up the runtime-facing half of the stream pair and
// may be called from any goroutine: each one posts onto the owning worker
// loop.
type Conn struct {
	id            uuid.UUID
	worker        *worker
	socket        socketConn
	logger        *logrus.Entry
	readStreamID  int64
	writeStreamID int64

	input        stream.Input
	reader       *pump.Reader
	writer       *pump.Writer
	readWatcher  *watcher
	writeWatcher *watcher

	writeReset func(err error)
	finishOnce sync.Once
	done       chan struct{}
}

func newConn(service *Service, logger *logrus.Entry, socket socketConn, readStreamID int64, writeStreamID int64) *Conn {
	worker := service.pickWorker()
	id := uuid.New()
	logger = log.Connection(logger, id)
	c := &Conn{
		id:            id,
		worker:        worker,
		socket:        socket,
		logger:        logger,
		readStreamID:  readStreamID,
		writeStreamID: writeStreamID,
		writeReset:    func(error) {},
		done:          make(chan struct{}),
	}
	c.reader = pump.NewReader(pump.ReaderOptions{
		Socket:   socket,
		Window:   window.NewTracker(0),
		Input:    delegatedInput{c},
		Logger:   logger,
		StreamID: readStreamID,
		ReadCap:  service.readCap,
		Fault:    func(err error) { c.fault(err) },
		WatchRead: func() {
			c.readWatcher.arm()
		},
		RetryRead: func() {
			c.post(c.reader.HandleReadable)
		},
	})
	c.writer = pump.NewWriter(pump.WriterOptions{
		Socket:    socket,
		Pool:      worker.pool,
		Counters:  service.counters,
		Logger:    logger,
		StreamID:  writeStreamID,
		SpinCount: service.spinCount,
		Reset: func(err error) {
			c.writeReset(err)
		},
		Fault: c.fault,
		WatchWrite: func() {
			c.writeWatcher.arm()
		},
	})
	c.readWatcher = newWatcher(socket.WaitRead, func() {
		c.post(c.reader.HandleReadable)
	})
	c.writeWatcher = newWatcher(socket.WaitWrite, func() {
		c.post(c.writer.HandleWritable)
	})
	return c
}

func (c *Conn) ID() uuid.UUID {
	return c.id
}

// StreamID reports the internal stream id of one direction of the pair.
func (c *Conn) StreamID(direction stream.Direction) int64 {
	if direction == stream.DirectionInbound {
		return c.readStreamID
	}
	return c.writeStreamID
}

// OnWriteReset installs the receiver of reset signals the write pump emits
// toward the runtime (overflow, write failure, protocol violation). The
// installation happens on the worker loop, so it is safe after start; a reset
// racing the installation still falls through to the previous receiver.
func (c *Conn) OnWriteReset(fn func(err error)) {
	if fn == nil {
		return
	}
	c.post(func() {
		c.writeReset = fn
	})
}

// Write submits one data frame from the runtime to the socket direction.
func (c *Conn) Write(p []byte) {
	data := make([]byte, len(p))
	copy(data, p)
	c.post(func() {
		c.writer.HandleData(data)
	})
}

// End signals end-of-stream for the socket direction. Buffered bytes still
// drain before the half-close happens.
func (c *Conn) End() {
	c.post(c.writer.HandleEnd)
}

// Reset abandons both directions immediately, discarding buffered bytes.
func (c *Conn) Reset() {
	c.post(func() {
		c.writer.HandleReset()
		c.reader.HandleReset()
	})
}

// Grant extends the window of the socket-to-runtime direction.
func (c *Conn) Grant(n int) {
	c.post(func() {
		c.reader.HandleGrant(n)
	})
}

// Done closes once both directions reached a terminal state and the socket
// was released.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) start(input stream.Input) {
	c.input = input
	c.readWatcher.arm()
}

func (c *Conn) post(fn func()) {
	c.worker.loop.Post(func() {
		fn()
		c.finishIfDone()
	})
}

// fault handles a protocol violation or connection-fatal error: both
// directions reset. Runs on the loop.
func (c *Conn) fault(err error) {
	c.logger.Debug("fault: ", err)
	c.reader.HandleFault(err)
	c.writer.HandleFault(err)
}

func (c *Conn) finishIfDone() {
	readerDone := c.reader.State() == pump.ReadEndOfStream || c.reader.State() == pump.ReadReset
	writerDone := c.writer.State() == pump.WriteClosed || c.writer.State() == pump.WriteReset
	if !readerDone || !writerDone {
		return
	}
	c.finish()
}

func (c *Conn) finish() {
	c.finishOnce.Do(func() {
		c.readWatcher.stop()
		c.writeWatcher.stop()
		c.socket.Close()
		close(c.done)
	})
}

// abort tears the connection down before it ever started, after a handler
// rejected it.
func (c *Conn) abort() {
	c.finishOnce.Do(func() {
		c.readWatcher.stop()
		c.writeWatcher.stop()
		c.socket.Abort()
		close(c.done)
	})
}

// delegatedInput defers the input binding until start, so handlers may call
// Grant on the half-built connection they receive.
type delegatedInput struct {
	c *Conn
}

func (i delegatedInput) Data(p []byte) error {
	return i.c.input.Data(p)
}

func (i delegatedInput) End() error {
	return i.c.input.End()
}

func (i delegatedInput) Reset() error {
	return i.c.input.Reset()
}
