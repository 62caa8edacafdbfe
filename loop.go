package bridge

import (
	"sync"
)

// Loop is the cooperative scheduler of one transport worker. Pump state, the
// slot pool and the window trackers of every connection assigned to a worker
// are confined to its loop goroutine, so none of them need locking. Readiness
// notifications and runtime signals enter through Post and run to completion
// one at a time.
type Loop struct {
	access  sync.Mutex
	wakeup  *sync.Cond
	pending []func()
	started bool
	closed  bool
	done    chan struct{}
}

func NewLoop() *Loop {
	loop := &Loop{
		done: make(chan struct{}),
	}
	loop.wakeup = sync.NewCond(&loop.access)
	return loop
}

func (l *Loop) Start() {
	l.access.Lock()
	if l.started || l.closed {
		l.access.Unlock()
		return
	}
	l.started = true
	l.access.Unlock()
	go l.run()
}

// Post schedules fn on the loop goroutine. It never blocks, so handlers
// running on the loop may post follow-up work without deadlocking.
func (l *Loop) Post(fn func()) {
	l.access.Lock()
	if l.closed {
		l.access.Unlock()
		return
	}
	l.pending = append(l.pending, fn)
	l.access.Unlock()
	l.wakeup.Signal()
}

func (l *Loop) Close() error {
	l.access.Lock()
	alreadyClosed := l.closed
	l.closed = true
	started := l.started
	l.access.Unlock()
	if !started {
		return nil
	}
	if !alreadyClosed {
		l.wakeup.Signal()
	}
	<-l.done
	return nil
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.access.Lock()
		for len(l.pending) == 0 && !l.closed {
			l.wakeup.Wait()
		}
		if l.closed && len(l.pending) == 0 {
			l.access.Unlock()
			return
		}
		batch := l.pending
		l.pending = nil
		l.access.Unlock()
		for _, fn := range batch {
			fn()
		}
	}
}
