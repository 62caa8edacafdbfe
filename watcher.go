package bridge

import (
	"sync"
)

// watcher waits for one kind of socket readiness and reports it to the loop.
// It is level-trigger safe: after each notification it stays parked until the
// pump explicitly re-arms it, so a socket that stays readable cannot storm the
// loop with duplicate events.
type watcher struct {
	wait     func() error
	notify   func()
	armed    chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func newWatcher(wait func() error, notify func()) *watcher {
	w := &watcher{
		wait:    wait,
		notify:  notify,
		armed:   make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *watcher) arm() {
	select {
	case w.armed <- struct{}{}:
	default:
	}
}

func (w *watcher) stop() {
	w.stopOnce.Do(func() {
		close(w.stopped)
	})
}

func (w *watcher) run() {
	for {
		select {
		case <-w.stopped:
			return
		case <-w.armed:
		}
		if err := w.wait(); err != nil {
			// The socket was torn down locally; the pumps are already
			// terminal or about to observe the close themselves.
			return
		}
		select {
		case <-w.stopped:
			return
		default:
		}
		w.notify()
	}
}
