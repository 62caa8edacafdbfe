// Package bridge adapts physical TCP connections to the duplex,
// flow-controlled stream pairs of the owning runtime. Each accepted or dialed
// socket gets a read pump and a write pump on one of the service's worker
// loops; the write pumps of a worker share its bounded slot pool, which is the
// only backpressure device of the outbound path.
package bridge

import (
	"sync"

	"github.com/sagernet/sing-bridge/counter"
	"github.com/sagernet/sing-bridge/log"
	"github.com/sagernet/sing-bridge/slot"

	"github.com/sagernet/sing/common/atomic"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSlotSize     = 64 * 1024
	DefaultPoolCapacity = 64 * DefaultSlotSize
	DefaultWorkers      = 1
)

type Options struct {
	Logger       *logrus.Entry
	Counters     *counter.Counters
	Workers      int
	PoolCapacity int
	SlotSize     int
	ReadCap      int
	WriteSpin    int
}

// worker is one event loop with its own slot pool. Pools are never shared
// across loops.
type worker struct {
	loop *Loop
	pool *slot.Pool
}

type Service struct {
	logger    *logrus.Entry
	counters  *counter.Counters
	readCap   int
	slotSize  int
	spinCount int

	workers      []*worker
	nextWorker   atomic.Uint32
	nextStreamID atomic.Int64

	access    sync.Mutex
	listeners []*Listener
	started   bool
	closed    bool
}

func New(options Options) (*Service, error) {
	logger := options.Logger
	if logger == nil {
		logger = log.NewLogger("bridge")
	}
	counters := options.Counters
	if counters == nil {
		counters = counter.New()
	}
	workerCount := options.Workers
	if workerCount <= 0 {
		workerCount = DefaultWorkers
	}
	poolCapacity := options.PoolCapacity
	if poolCapacity <= 0 {
		poolCapacity = DefaultPoolCapacity
	}
	slotSize := options.SlotSize
	if slotSize <= 0 {
		slotSize = DefaultSlotSize
	}
	service := &Service{
		logger:    logger,
		counters:  counters,
		readCap:   options.ReadCap,
		slotSize:  slotSize,
		spinCount: options.WriteSpin,
	}
	for index := 0; index < workerCount; index++ {
		pool, err := slot.NewPool(poolCapacity, slotSize)
		if err != nil {
			return nil, E.Cause(err, "create slot pool")
		}
		service.workers = append(service.workers, &worker{
			loop: NewLoop(),
			pool: pool,
		})
	}
	return service, nil
}

func (s *Service) Counters() *counter.Counters {
	return s.counters
}

func (s *Service) SlotSize() int {
	return s.slotSize
}

func (s *Service) Start() error {
	s.access.Lock()
	defer s.access.Unlock()
	if s.started {
		return E.New("already started")
	}
	for _, w := range s.workers {
		w.loop.Start()
	}
	for index, listener := range s.listeners {
		if err := listener.Start(); err != nil {
			// Unwind so a later Start can retry from a clean slate.
			for _, bound := range s.listeners[:index] {
				bound.Close()
			}
			return err
		}
	}
	s.started = true
	return nil
}

func (s *Service) Close() error {
	s.access.Lock()
	if s.closed {
		s.access.Unlock()
		return nil
	}
	s.closed = true
	listeners := s.listeners
	s.access.Unlock()
	for _, listener := range listeners {
		listener.Close()
	}
	for _, w := range s.workers {
		w.loop.Close()
	}
	return nil
}

func (s *Service) pickWorker() *worker {
	index := s.nextWorker.Add(1)
	return s.workers[int(index)%len(s.workers)]
}

func (s *Service) allocateStreamID() int64 {
	return s.nextStreamID.Add(1)
}
