package pump

import (
	"io"
	"testing"

	"github.com/sagernet/sing-bridge/window"

	E "github.com/sagernet/sing/common/exceptions"
	"github.com/stretchr/testify/require"
)

type readerFixture struct {
	socket *fakeSocket
	window *window.Tracker
	input  *recordInput
	reader *Reader

	readWishes int
	retries    int
}

func newReaderFixture(socket *fakeSocket, readCap int) *readerFixture {
	f := &readerFixture{
		socket: socket,
		window: window.NewTracker(0),
		input:  new(recordInput),
	}
	f.reader = NewReader(ReaderOptions{
		Socket:   socket,
		Window:   f.window,
		Input:    f.input,
		StreamID: 1,
		ReadCap:  readCap,
		WatchRead: func() {
			f.readWishes++
		},
		RetryRead: func() {
			f.retries++
		},
	})
	return f
}

func TestReadForwards(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readQueue: [][]byte{[]byte("client data")}}
	f := newReaderFixture(socket, 0)

	f.reader.HandleGrant(1024)
	f.reader.HandleReadable()
	require.Equal(t, ReadReading, f.reader.State())
	require.Equal(t, [][]byte{[]byte("client data")}, f.input.frames)
	require.Equal(t, 1024-len("client data"), f.window.Remaining())
	require.Equal(t, 1, f.retries, "more bytes may be buffered, read again before waiting")
	require.Zero(t, f.readWishes)

	// Only a drained socket earns a readiness wait.
	f.reader.HandleReadable()
	require.Equal(t, 1, f.readWishes)
	require.Equal(t, 1, f.retries)
}

func TestReadRespectsWindow(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readQueue: [][]byte{[]byte("client data")}}
	f := newReaderFixture(socket, 0)

	f.reader.HandleGrant(6)
	f.reader.HandleReadable()
	require.Equal(t, []byte("client"), f.input.joined())
	require.Equal(t, 0, f.window.Remaining())
	require.Zero(t, f.readWishes, "a zero window must not consume a readiness edge")

	// Zero window parks the pump: no read happens until the next grant.
	reads := socket.reads
	f.reader.HandleReadable()
	require.Equal(t, reads, socket.reads)

	f.reader.HandleGrant(1024)
	require.Equal(t, 1, f.retries, "the grant retries the read directly")
	f.reader.HandleReadable()
	f.reader.HandleReadable()
	require.Equal(t, []byte("client data"), f.input.joined())
}

func TestReadRespectsCap(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readQueue: [][]byte{[]byte("client data")}}
	f := newReaderFixture(socket, 4)

	f.reader.HandleGrant(1024)
	f.reader.HandleReadable()
	require.Equal(t, []byte("clie"), f.input.joined())
	require.Equal(t, 1020, f.window.Remaining())
	require.Equal(t, 1, f.retries, "a cap-bounded pass reads again instead of waiting")
	require.Zero(t, f.readWishes)
}

func TestReadZeroWindowIdle(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readQueue: [][]byte{[]byte("client data")}}
	f := newReaderFixture(socket, 0)

	f.reader.HandleReadable()
	require.Equal(t, ReadReading, f.reader.State())
	require.Zero(t, socket.reads)

	// The grant itself retries the read so the parked data gets picked up.
	f.reader.HandleGrant(1024)
	require.Equal(t, 1, f.retries)
	f.reader.HandleReadable()
	require.Equal(t, []byte("client data"), f.input.joined())
}

func TestReadDrainedSocketKeepsReading(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{}
	f := newReaderFixture(socket, 0)

	f.reader.HandleGrant(1024)
	f.reader.HandleReadable()
	require.Equal(t, ReadReading, f.reader.State())
	require.Empty(t, f.input.frames)
	require.Zero(t, f.input.ends)
	require.Equal(t, 1, f.readWishes)
	require.Zero(t, f.retries)
}

func TestReadEndOfStream(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readQueue: [][]byte{[]byte("client data")}, readErr: io.EOF}
	f := newReaderFixture(socket, 0)

	f.reader.HandleGrant(1024)
	f.reader.HandleReadable()
	f.reader.HandleReadable()
	require.Equal(t, ReadEndOfStream, f.reader.State())
	require.Equal(t, []byte("client data"), f.input.joined())
	require.Equal(t, 1, f.input.ends)

	f.reader.HandleReadable()
	f.reader.HandleGrant(1024)
	require.Equal(t, 1, f.input.ends, "end of stream is emitted once")
}

func TestReadFailure(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readErr: E.New("connection reset")}
	f := newReaderFixture(socket, 0)

	f.reader.HandleGrant(1024)
	f.reader.HandleReadable()
	require.Equal(t, ReadReset, f.reader.State())
	require.Equal(t, 1, f.input.resets)

	f.reader.HandleReadable()
	require.Equal(t, 1, f.input.resets, "reset is emitted once")
}

func TestReadRuntimeReset(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{readQueue: [][]byte{[]byte("client data")}}
	f := newReaderFixture(socket, 0)

	f.reader.HandleGrant(1024)
	f.reader.HandleReset()
	require.Equal(t, ReadReset, f.reader.State())

	f.reader.HandleReadable()
	require.Empty(t, f.input.frames, "an abandoned stream forwards nothing")
	require.Zero(t, f.input.resets, "the runtime initiated the reset, no echo")
}

func TestReadFault(t *testing.T) {
	t.Parallel()
	socket := &fakeSocket{}
	f := newReaderFixture(socket, 0)

	f.reader.HandleFault(E.New("peer direction failed"))
	require.Equal(t, ReadReset, f.reader.State())
	require.Equal(t, 1, f.input.resets)

	f.reader.HandleFault(E.New("again"))
	require.Equal(t, 1, f.input.resets)
}
