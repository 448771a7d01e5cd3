// Package correlation matches incoming GNSS position fixes against the
// project's surveyed holes and reports drilling progress for the nearest one.
package correlation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"

	"github.com/wintech-vn/drilltrack/internal/geo"
	"github.com/wintech-vn/drilltrack/internal/match"
	"github.com/wintech-vn/drilltrack/internal/model"
	"github.com/wintech-vn/drilltrack/internal/parser"
)

// MessageHandler consumes one raw message from a transport subscription.
type MessageHandler func(topic string, payload []byte)

// Transport is the message source the service subscribes to. Implemented by
// the MQTT subscriber.
type Transport interface {
	Connect() error
	Subscribe(topic string, handler MessageHandler) error
	Disconnect()
}

// Submitter posts a drilling update for a matched hole. *api.Client
// satisfies it.
type Submitter interface {
	PostDrillingSpeed(projectID, holeID string, speed, depth float64, capturedAt time.Time, sensorID string) error
}

// HoleSource supplies the current set of candidate holes.
type HoleSource interface {
	Holes() []model.Hole
}

// Recorder persists fixes and submissions for later analysis. Optional.
type Recorder interface {
	RecordFix(fix model.PositionFix, raw []byte)
	RecordSubmission(holeID string, speed, depth, distance float64, at time.Time)
}

// Config holds the correlation settings.
type Config struct {
	Topic             string
	MaxDistanceMeters float64
	SensorID          string
	ProjectID         string
}

// Service subscribes to a position feed, resolves each fix to the nearest
// surveyed hole and submits the current drilling sample for it. Without a
// submitter or project it runs in monitor mode: fixes are parsed and counted
// but nothing is sent.
type Service struct {
	cfg       Config
	transport Transport
	holes     HoleSource
	submitter Submitter
	recorder  Recorder
	log       zerolog.Logger

	sampleMu  sync.Mutex
	speed     float64
	depth     float64
	hasSample bool

	statsMu sync.Mutex
	stats   model.CorrelationStats

	runMu   sync.Mutex
	running bool

	received  metric.Int64Counter
	processed metric.Int64Counter
	matched   metric.Int64Counter
	rejected  metric.Int64Counter
}

// New creates a correlation service. The recorder may be nil.
func New(transport Transport, holes HoleSource, submitter Submitter, recorder Recorder, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.MaxDistanceMeters <= 0 {
		cfg.MaxDistanceMeters = 10.0
	}

	s := &Service{
		cfg:       cfg,
		transport: transport,
		holes:     holes,
		submitter: submitter,
		recorder:  recorder,
		log:       logger.With().Str("module", "correlation").Logger(),
	}

	m := meter()
	var err error

	s.received, err = m.Int64Counter("correlation.messages.received",
		metric.WithDescription("Total messages received from the transport"))
	if err != nil {
		return nil, fmt.Errorf("creating received counter: %w", err)
	}
	s.processed, err = m.Int64Counter("correlation.fixes.processed",
		metric.WithDescription("Total messages that yielded a position fix"))
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	s.matched, err = m.Int64Counter("correlation.holes.updated",
		metric.WithDescription("Total drilling updates submitted for matched holes"))
	if err != nil {
		return nil, fmt.Errorf("creating matched counter: %w", err)
	}
	s.rejected, err = m.Int64Counter("correlation.fixes.rejected",
		metric.WithDescription("Total fixes outside the match threshold"))
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}

	return s, nil
}

// SetDrillingData updates the current drilling sample. Last write wins; the
// value rides along with the next matched fix. Until the first call, matched
// fixes are counted but nothing is submitted.
func (s *Service) SetDrillingData(speed, depth float64) {
	s.sampleMu.Lock()
	s.speed = speed
	s.depth = depth
	s.hasSample = true
	s.sampleMu.Unlock()
}

// Stats returns a snapshot of the correlation counters.
func (s *Service) Stats() model.CorrelationStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Start connects the transport and subscribes to the position topic. No-op
// if already running.
func (s *Service) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	if err := s.transport.Connect(); err != nil {
		return fmt.Errorf("connecting transport: %w", err)
	}
	if err := s.transport.Subscribe(s.cfg.Topic, s.onMessage); err != nil {
		s.transport.Disconnect()
		return fmt.Errorf("subscribing to %s: %w", s.cfg.Topic, err)
	}

	s.running = true
	mode := "active"
	if s.submitter == nil || s.cfg.ProjectID == "" {
		mode = "monitor"
	}
	s.log.Info().Str("topic", s.cfg.Topic).Str("mode", mode).
		Float64("max_distance_m", s.cfg.MaxDistanceMeters).Msg("correlation started")
	return nil
}

// Stop disconnects the transport.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.transport.Disconnect()

	stats := s.Stats()
	s.log.Info().Uint64("messages", stats.MessagesReceived).
		Uint64("fixes", stats.FixesProcessed).
		Uint64("updates", stats.HolesUpdated).Msg("correlation stopped")
}

// onMessage handles one raw transport message. A malformed payload must
// never take down the subscription.
func (s *Service) onMessage(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("topic", topic).
				Msg("recovered while handling message")
		}
	}()

	receivedAt := time.Now()

	s.statsMu.Lock()
	s.stats.MessagesReceived++
	s.statsMu.Unlock()
	s.received.Add(context.Background(), 1)

	fix, err := parser.Parse(payload, receivedAt)
	if err != nil {
		s.log.Debug().Err(err).Str("topic", topic).Msg("message carried no position")
		return
	}

	s.statsMu.Lock()
	s.stats.FixesProcessed++
	s.stats.LastFix = &fix
	s.statsMu.Unlock()
	s.processed.Add(context.Background(), 1)

	if s.recorder != nil {
		s.recorder.RecordFix(fix, payload)
	}

	if s.submitter == nil || s.cfg.ProjectID == "" {
		return
	}

	holes := s.holes.Holes()
	if len(holes) == 0 {
		s.log.Warn().Msg("no holes available for matching")
		return
	}

	nearest, distance := match.FindNearest(holes, fix)
	if nearest == nil {
		s.log.Warn().Msg("no surveyed holes available for matching")
		return
	}
	if distance > s.cfg.MaxDistanceMeters {
		s.rejected.Add(context.Background(), 1)
		s.log.Debug().Str("hole", nearest.ExternalID).
			Str("distance", geo.FormatDistance(distance)).
			Msg("nearest hole outside match threshold")
		return
	}

	s.sampleMu.Lock()
	speed, depth, hasSample := s.speed, s.depth, s.hasSample
	s.sampleMu.Unlock()
	if !hasSample {
		s.log.Debug().Str("hole", nearest.ExternalID).
			Msg("no drilling sample set, skipping submission")
		return
	}

	err = s.submitter.PostDrillingSpeed(s.cfg.ProjectID, nearest.ExternalID,
		speed, depth, fix.ReceivedAt, s.cfg.SensorID)
	if err != nil {
		s.log.Warn().Err(err).Str("hole", nearest.ExternalID).
			Msg("drilling update submission failed")
		return
	}

	s.statsMu.Lock()
	s.stats.HolesUpdated++
	s.stats.LastUpdate = time.Now()
	s.statsMu.Unlock()
	s.matched.Add(context.Background(), 1)

	if s.recorder != nil {
		s.recorder.RecordSubmission(nearest.ExternalID, speed, depth, distance, fix.ReceivedAt)
	}

	s.log.Info().Str("hole", nearest.ExternalID).
		Str("distance", geo.FormatDistance(distance)).
		Float64("speed", speed).Float64("depth", depth).
		Msg("drilling update submitted")
}
