// Package recorder persists position fixes and drilling submissions to a
// local SQLite file or a PostgreSQL server for later analysis.
package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wintech-vn/drilltrack/internal/geo"
	"github.com/wintech-vn/drilltrack/internal/model"
)

// Config selects the backing database.
type Config struct {
	UsePostgres bool
	SQLitePath  string // empty means in-memory

	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// FixRecord is one persisted GNSS fix. Point holds the position as EPSG:3857
// WKB so GIS tools can consume the table directly.
type FixRecord struct {
	ID         uint      `gorm:"primarykey"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	Latitude   float64
	Longitude  float64
	Elevation  *float64
	Point      []byte `gorm:"type:bytes"`
	Raw        datatypes.JSON
	ReceivedAt time.Time
}

// SubmissionRecord is one persisted drilling update.
type SubmissionRecord struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	HoleID    string    `gorm:"index"`
	Speed     float64
	Depth     float64
	Distance  float64
	SentAt    time.Time
}

// Store writes records asynchronously so the message path never blocks on
// the database. Writes are dropped with a warning when the buffer is full.
type Store struct {
	db      *gorm.DB
	log     zerolog.Logger
	pending chan any
	done    chan struct{}
}

const pendingBuffer = 256

// Open connects to the configured database, migrates the schema and starts
// the background writer. An unreachable Postgres server degrades to the
// local SQLite file so recording keeps working offline.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	log := logger.With().Str("module", "recorder").Logger()

	var db *gorm.DB
	var err error
	if cfg.UsePostgres {
		db, err = openPostgres(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, falling back to sqlite")
			db, err = openSQLite(cfg.SQLitePath)
		}
	} else {
		db, err = openSQLite(cfg.SQLitePath)
	}
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&FixRecord{}, &SubmissionRecord{}); err != nil {
		return nil, fmt.Errorf("migrating recorder schema: %w", err)
	}

	s := &Store{
		db:      db,
		log:     log,
		pending: make(chan any, pendingBuffer),
		done:    make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database,
	)
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

func openSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	return db, nil
}

// RecordFix queues a position fix for persistence.
func (s *Store) RecordFix(fix model.PositionFix, raw []byte) {
	rec := FixRecord{
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Elevation:  fix.Elevation,
		ReceivedAt: fix.ReceivedAt,
	}

	elevation := 0.0
	if fix.Elevation != nil {
		elevation = *fix.Elevation
	}
	rec.Point = geo.WKB3857From4326(fix.Longitude, fix.Latitude, elevation)

	if len(raw) > 0 {
		// Sentence-form payloads are not JSON; wrap them so the jsonb column
		// accepts them on the Postgres backend.
		if json.Valid(raw) {
			rec.Raw = datatypes.JSON(raw)
		} else if wrapped, err := json.Marshal(map[string]string{"raw": string(raw)}); err == nil {
			rec.Raw = datatypes.JSON(wrapped)
		}
	}
	s.enqueue(&rec)
}

// RecordSubmission queues a drilling update for persistence.
func (s *Store) RecordSubmission(holeID string, speed, depth, distance float64, at time.Time) {
	s.enqueue(&SubmissionRecord{
		HoleID:   holeID,
		Speed:    speed,
		Depth:    depth,
		Distance: distance,
		SentAt:   at,
	})
}

func (s *Store) enqueue(rec any) {
	select {
	case s.pending <- rec:
	default:
		s.log.Warn().Msg("recorder buffer full, dropping record")
	}
}

func (s *Store) writer() {
	defer close(s.done)
	for rec := range s.pending {
		if err := s.db.Create(rec).Error; err != nil {
			s.log.Error().Err(err).Msg("persisting record failed")
		}
	}
}

// Close drains the pending records and shuts the writer down. Producers
// must be stopped before calling Close.
func (s *Store) Close() error {
	close(s.pending)
	<-s.done

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FixCount returns the number of persisted fixes.
func (s *Store) FixCount() (int64, error) {
	var n int64
	err := s.db.Model(&FixRecord{}).Count(&n).Error
	return n, err
}

// SubmissionCount returns the number of persisted submissions.
func (s *Store) SubmissionCount() (int64, error) {
	var n int64
	err := s.db.Model(&SubmissionRecord{}).Count(&n).Error
	return n, err
}
