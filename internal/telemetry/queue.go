// Package telemetry delivers drilling samples to the remote API on a fixed
// cadence with last-write-wins semantics.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/wintech-vn/drilltrack/internal/model"
	"github.com/wintech-vn/drilltrack/internal/queue"
)

// Sink receives the delivered samples. *api.Client satisfies it.
type Sink interface {
	PostDrillingSpeed(projectID, holeID string, speed, depth float64, capturedAt time.Time, sensorID string) error
}

// Config holds the coalescing queue settings.
type Config struct {
	ProjectID     string
	HoleID        string
	SensorID      string
	Capacity      int           // bounded buffer size, e.g. 1000
	FlushInterval time.Duration // cadence of delivery attempts, e.g. 2s
}

// CoalescingQueue buffers telemetry samples and periodically delivers only
// the freshest one. A successful delivery clears the whole buffer; a failed
// delivery leaves it untouched so the next tick retries with then-current
// state. The contract is at-most-the-freshest-value delivery, a live feed
// rather than an audit trail.
type CoalescingQueue struct {
	cfg  Config
	sink Sink
	log  zerolog.Logger

	samples *queue.Bounded[model.TelemetrySample]

	holeMu sync.Mutex
	holeID string

	statsMu sync.Mutex
	stats   model.DeliveryStats

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}

	// OTEL metrics, no-op unless an SDK is configured
	queued  metric.Int64Counter
	evicted metric.Int64Counter
	sent    metric.Int64Counter
	failed  metric.Int64Counter
}

// joinTimeout bounds the wait for the worker during Stop.
const joinTimeout = 5 * time.Second

// New creates a coalescing queue delivering to the given sink.
func New(sink Sink, cfg Config, logger zerolog.Logger) (*CoalescingQueue, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}

	q := &CoalescingQueue{
		cfg:     cfg,
		sink:    sink,
		log:     logger.With().Str("module", "telemetry").Logger(),
		samples: queue.NewBounded[model.TelemetrySample](cfg.Capacity),
		holeID:  cfg.HoleID,
	}

	m := meter()
	var err error

	q.queued, err = m.Int64Counter("telemetry.samples.queued",
		metric.WithDescription("Total samples added to the queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queued counter: %w", err)
	}
	q.evicted, err = m.Int64Counter("telemetry.samples.evicted",
		metric.WithDescription("Total samples evicted due to a full queue"))
	if err != nil {
		return nil, fmt.Errorf("creating evicted counter: %w", err)
	}
	q.sent, err = m.Int64Counter("telemetry.flushes.sent",
		metric.WithDescription("Total successful deliveries"))
	if err != nil {
		return nil, fmt.Errorf("creating sent counter: %w", err)
	}
	q.failed, err = m.Int64Counter("telemetry.flushes.failed",
		metric.WithDescription("Total failed deliveries"))
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	depth, err := m.Int64ObservableGauge("telemetry.queue.size",
		metric.WithDescription("Current number of queued samples"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(depth, int64(q.samples.Len()))
			return nil
		},
		depth,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	return q, nil
}

// Add queues one sample. Safe to call from any goroutine at any rate; when
// the buffer is full the oldest sample is dropped.
func (q *CoalescingQueue) Add(sample model.TelemetrySample) {
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now()
	}
	if q.samples.Push(sample) {
		q.evicted.Add(context.Background(), 1)
	}
	q.queued.Add(context.Background(), 1)
}

// SetHoleID changes the hole the queue delivers to.
func (q *CoalescingQueue) SetHoleID(holeID string) {
	q.holeMu.Lock()
	q.holeID = holeID
	q.holeMu.Unlock()
}

// Len returns the number of undelivered samples.
func (q *CoalescingQueue) Len() int {
	return q.samples.Len()
}

// Stats returns a snapshot of the delivery counters.
func (q *CoalescingQueue) Stats() model.DeliveryStats {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	return q.stats
}

// Start launches the background delivery worker. No-op if already running.
func (q *CoalescingQueue) Start() {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopChan = make(chan struct{})
	q.done = make(chan struct{})
	go q.run(q.stopChan, q.done)
	q.log.Info().Dur("flush_interval", q.cfg.FlushInterval).
		Int("capacity", q.cfg.Capacity).Msg("delivery worker started")
}

// Stop signals the worker, waits for one final flush attempt and exits. The
// wait is bounded; on timeout the worker may still be finishing a flush.
func (q *CoalescingQueue) Stop() {
	q.runMu.Lock()
	if !q.running {
		q.runMu.Unlock()
		return
	}
	q.running = false
	close(q.stopChan)
	done := q.done
	q.runMu.Unlock()

	select {
	case <-done:
	case <-time.After(joinTimeout):
		q.log.Warn().Msg("delivery worker did not stop in time")
	}
	q.log.Info().Uint64("sent", q.Stats().Sent).Uint64("failed", q.Stats().Failed).
		Msg("delivery worker stopped")
}

func (q *CoalescingQueue) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			q.flush()
		case <-stop:
			// Best-effort delivery of the last sample on shutdown.
			q.flush()
			return
		}
	}
}

// flush delivers the most recent sample, discarding all older ones on
// success. The sink call is made without holding any queue lock.
func (q *CoalescingQueue) flush() {
	sample, ok := q.samples.Latest()
	if !ok {
		return
	}

	q.holeMu.Lock()
	holeID := q.holeID
	q.holeMu.Unlock()
	if holeID == "" {
		q.log.Debug().Msg("no hole bound, skipping flush")
		return
	}

	err := q.sink.PostDrillingSpeed(q.cfg.ProjectID, holeID,
		sample.Speed, sample.Depth, sample.CapturedAt, q.cfg.SensorID)

	q.statsMu.Lock()
	if err != nil {
		q.stats.Failed++
		q.statsMu.Unlock()
		q.failed.Add(context.Background(), 1)
		q.log.Warn().Err(err).Str("hole", holeID).Msg("telemetry delivery failed")
		return
	}
	q.stats.Sent++
	q.stats.LastSend = time.Now()
	q.statsMu.Unlock()
	q.sent.Add(context.Background(), 1)

	// Older queued samples were superseded by the delivered one.
	q.samples.Clear()
	q.log.Debug().Str("hole", holeID).Float64("speed", sample.Speed).
		Float64("depth", sample.Depth).Msg("telemetry delivered")
}
