package typestate

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type RunStats struct {
	Function   string
	OK         bool
	Steps      int
	Paths      int
	Violations int
	Duration   time.Duration
	// Dropped counts the runs an AsyncRunObserver lost since it delivered
	// the previous one.
	Dropped uint64
}

type RunObserver interface {
	ObserveRun(stats RunStats)
}

type RunLogger struct {
	logger *slog.Logger
}

func NewRunLogger(logger *slog.Logger) *RunLogger {
	return &RunLogger{logger: logger}
}

func (l *RunLogger) ObserveRun(s RunStats) {
	if l == nil || l.logger == nil {
		return
	}
	if s.Dropped > 0 {
		l.logger.Warn("order_evaluations_dropped", "count", s.Dropped)
	}
	l.logger.Info("order_evaluation",
		"function", s.Function,
		"ok", s.OK,
		"steps", s.Steps,
		"paths", s.Paths,
		"violations", s.Violations,
		"duration_ms", float64(s.Duration.Microseconds())/1000.0,
	)
}

// AsyncRunObserver hands run statistics to next on its own goroutine so
// evaluations never wait on logging or metrics. A run that finds the buffer
// full, or arrives after Close, is lost; the next delivered RunStats carries
// the number lost in Dropped.
type AsyncRunObserver struct {
	next RunObserver
	runs chan RunStats
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	stop   sync.Once

	lost    atomic.Uint64
	pending atomic.Uint64
}

func NewAsyncRunObserver(next RunObserver, buffer int) *AsyncRunObserver {
	o := &AsyncRunObserver{
		next: next,
		runs: make(chan RunStats, max(buffer, 1)),
		done: make(chan struct{}),
	}
	go o.deliver()
	return o
}

func (o *AsyncRunObserver) deliver() {
	defer close(o.done)
	for s := range o.runs {
		s.Dropped += o.pending.Swap(0)
		if o.next != nil {
			o.next.ObserveRun(s)
		}
	}
}

func (o *AsyncRunObserver) ObserveRun(s RunStats) {
	if o == nil {
		return
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.closed {
		select {
		case o.runs <- s:
			return
		default:
		}
	}
	o.lost.Add(1)
	o.pending.Add(1)
}

// Dropped returns the total number of runs lost so far.
func (o *AsyncRunObserver) Dropped() uint64 {
	if o == nil {
		return 0
	}
	return o.lost.Load()
}

// Close delivers the buffered runs and stops the goroutine.
func (o *AsyncRunObserver) Close() {
	if o == nil {
		return
	}
	o.stop.Do(func() {
		o.mu.Lock()
		o.closed = true
		close(o.runs)
		o.mu.Unlock()
		<-o.done
	})
}

// MultiRunObserver forwards each observation to every observer in order.
type MultiRunObserver []RunObserver

func (m MultiRunObserver) ObserveRun(s RunStats) {
	for _, o := range m {
		if o != nil {
			o.ObserveRun(s)
		}
	}
}
