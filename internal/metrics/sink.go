package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/puri-adityakumar/clawdium/internal/store"
)

const DefaultSinkBuffer = 1024

type increment struct {
	name  string
	delta int64
}

// Sink persists counter increments in the background. Emit never blocks;
// when the buffer is full the increment is dropped and counted.
type Sink struct {
	store      store.MetricStore
	collectors *Collectors
	log        zerolog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan increment
	wg     sync.WaitGroup
}

func NewSink(st store.MetricStore, buffer int, collectors *Collectors, log zerolog.Logger) *Sink {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	s := &Sink{
		store:      st,
		collectors: collectors,
		log:        log,
		ch:         make(chan increment, buffer),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Sink) Emit(name string, delta int64) {
	if s.collectors != nil {
		s.collectors.SiteCounters.WithLabelValues(name).Add(float64(delta))
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- increment{name: name, delta: delta}:
	default:
		if s.collectors != nil {
			s.collectors.SinkDropped.Inc()
		}
		s.log.Warn().Str("metric", name).Msg("metric sink full, increment dropped")
	}
}

// Close stops accepting increments and waits for the buffer to drain.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sink) run() {
	defer s.wg.Done()
	for inc := range s.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.IncrementMetric(ctx, inc.name, inc.delta); err != nil {
			s.log.Warn().Err(err).Str("metric", inc.name).Msg("metric increment failed")
		}
		cancel()
	}
}
