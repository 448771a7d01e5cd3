// Package stats ships runtime counters to InfluxDB, falling back to a
// gzipped line-protocol file when the server is unreachable.
package stats

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/wintech-vn/drilltrack/internal/model"
)

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Bucket       string
	Logger       zerolog.Logger
	BackupPath   string
}

// NewManager creates a new InfluxDB manager writing to the configured bucket.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		IsValid:    false,
		Bucket:     viper.GetString("influx.bucket"),
		Logger:     log.With().Str("module", "stats").Logger(),
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB.
func (m *Manager) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.IsValid = false
		if m.BackupWriter == nil {
			m.Logger.Info().Str("backupPath", m.BackupPath).
				Msg("failed to reach InfluxDB, writing to backup file")

			file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			m.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		m.IsValid = true
	}

	if m.IsValid {
		if err := m.ensureOrganizationAndBucket(); err != nil {
			return err
		}
		m.createWriter()
		m.Logger.Info().Msg("InfluxDB client initialized")
	} else {
		m.Logger.Warn().Msg("InfluxDB client failed to initialize, using backup writer")
	}

	return nil
}

func (m *Manager) ensureOrganizationAndBucket() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("error creating organization")
			return err
		}
	}

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("error getting organization")
		return err
	}

	_, err = m.Client.BucketsAPI().FindBucketByName(ctx, m.Bucket)
	if err != nil {
		m.Logger.Info().Str("bucket", m.Bucket).Msg("bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, m.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", m.Bucket).Msg("error creating bucket")
			return err
		}
	}

	return nil
}

func (m *Manager) createWriter() {
	orgName := viper.GetString("influx.org")
	m.Writer = m.Client.WriteAPI(orgName, m.Bucket)

	errorsCh := m.Writer.Errors()
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Bucket).
				Msg("error sending data to InfluxDB")
		}
	}(errorsCh)
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// Close flushes pending writes and shuts the client down.
func (m *Manager) Close() {
	if m.IsValid {
		m.Writer.Flush()
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			m.Logger.Error().Err(err).Msg("error closing backup writer")
		}
	}
}

// CorrelationSource supplies correlation counters for flushing.
type CorrelationSource interface {
	Stats() model.CorrelationStats
}

// DeliverySource supplies delivery counters for flushing.
type DeliverySource interface {
	Stats() model.DeliveryStats
	Len() int
}

// Flusher periodically samples the services and writes their counters as
// InfluxDB points.
type Flusher struct {
	manager     *Manager
	correlation CorrelationSource
	delivery    DeliverySource
	interval    time.Duration
	log         zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewFlusher creates a flusher sampling at the given interval. Either source
// may be nil.
func NewFlusher(manager *Manager, correlation CorrelationSource, delivery DeliverySource, interval time.Duration, logger zerolog.Logger) *Flusher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Flusher{
		manager:     manager,
		correlation: correlation,
		delivery:    delivery,
		interval:    interval,
		log:         logger.With().Str("module", "stats").Logger(),
	}
}

// Start launches the sampling loop. No-op if already running.
func (f *Flusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.stopChan = make(chan struct{})
	f.done = make(chan struct{})
	go f.run(f.stopChan, f.done)
}

// Stop writes a final sample and stops the loop.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopChan)
	done := f.done
	f.mu.Unlock()
	<-done
}

func (f *Flusher) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-stop:
			f.flush()
			return
		}
	}
}

func (f *Flusher) flush() {
	now := time.Now()

	if f.correlation != nil {
		s := f.correlation.Stats()
		point := influxdb2_write.NewPointWithMeasurement("correlation").
			AddField("messages_received", int64(s.MessagesReceived)).
			AddField("fixes_processed", int64(s.FixesProcessed)).
			AddField("holes_updated", int64(s.HolesUpdated)).
			SetTime(now)
		if err := f.manager.WritePoint(point); err != nil {
			f.log.Warn().Err(err).Msg("writing correlation stats failed")
		}
	}

	if f.delivery != nil {
		s := f.delivery.Stats()
		point := influxdb2_write.NewPointWithMeasurement("delivery").
			AddField("sent", int64(s.Sent)).
			AddField("failed", int64(s.Failed)).
			AddField("queue_size", int64(f.delivery.Len())).
			SetTime(now)
		if err := f.manager.WritePoint(point); err != nil {
			f.log.Warn().Err(err).Msg("writing delivery stats failed")
		}
	}
}
