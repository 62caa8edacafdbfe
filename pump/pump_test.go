package pump

import "bytes"

// fakeSocket scripts the non-blocking socket contract for pump tests.
//
// Reads pop from readQueue one chunk at a time, keeping the remainder of a
// chunk when the destination is smaller; a drained queue yields readErr when
// set and (0, nil) otherwise. Writes pop a per-call byte budget from
// writeBudget, reporting ErrWouldBlock for the part the budget rejected; an
// empty budget queue accepts everything.
type fakeSocket struct {
	readQueue [][]byte
	readErr   error
	reads     int

	writeBudget []int
	writeErr    error
	written     bytes.Buffer

	writeClosed bool
	closed      bool
	aborted     bool
}

func (s *fakeSocket) Read(p []byte) (int, error) {
	s.reads++
	if len(s.readQueue) == 0 {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, nil
	}
	front := s.readQueue[0]
	n := copy(p, front)
	if n == len(front) {
		s.readQueue = s.readQueue[1:]
	} else {
		s.readQueue[0] = front[n:]
	}
	return n, nil
}

func (s *fakeSocket) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	if len(s.writeBudget) == 0 {
		s.written.Write(p)
		return len(p), nil
	}
	budget := s.writeBudget[0]
	s.writeBudget = s.writeBudget[1:]
	if budget >= len(p) {
		s.written.Write(p)
		return len(p), nil
	}
	s.written.Write(p[:budget])
	return budget, ErrWouldBlock
}

func (s *fakeSocket) CloseWrite() error {
	s.writeClosed = true
	return nil
}

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSocket) Abort() error {
	s.aborted = true
	return nil
}

// recordInput captures the stream signals a pump emits toward the runtime.
type recordInput struct {
	frames [][]byte
	ends   int
	resets int
}

func (i *recordInput) Data(p []byte) error {
	frame := make([]byte, len(p))
	copy(frame, p)
	i.frames = append(i.frames, frame)
	return nil
}

func (i *recordInput) End() error {
	i.ends++
	return nil
}

func (i *recordInput) Reset() error {
	i.resets++
	return nil
}

func (i *recordInput) joined() []byte {
	var all []byte
	for _, frame := range i.frames {
		all = append(all, frame...)
	}
	return all
}

func wouldBlockTimes(n int) []int {
	budget := make([]int, n)
	return budget
}
