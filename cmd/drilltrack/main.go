// Command drilltrack correlates GNSS rig positions with surveyed drillholes
// and reports drilling progress to the holes API.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wintech-vn/drilltrack/internal/api"
	"github.com/wintech-vn/drilltrack/internal/config"
	"github.com/wintech-vn/drilltrack/internal/correlation"
	"github.com/wintech-vn/drilltrack/internal/holes"
	"github.com/wintech-vn/drilltrack/internal/logging"
	"github.com/wintech-vn/drilltrack/internal/mqtt"
	"github.com/wintech-vn/drilltrack/internal/recorder"
	"github.com/wintech-vn/drilltrack/internal/stats"
	"github.com/wintech-vn/drilltrack/internal/telemetry"
)

func main() {
	configDir := flag.String("config", ".", "directory containing drilltrack.cfg.json")
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "drilltrack: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	configErr := config.Load(configDir)

	log, err := logging.Setup(
		config.GetString("logLevel"),
		config.GetString("logsDir"),
		config.GetBool("graylog.enabled"),
		config.GetString("graylog.address"),
	)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	if configErr != nil {
		log.Warn().Err(configErr).Str("dir", configDir).
			Msg("config file not loaded, running on defaults")
	}

	projectID := config.GetString("project.id")

	client := api.New(
		config.GetString("api.serverUrl"),
		time.Duration(config.GetInt("api.timeoutSeconds"))*time.Second,
	)
	if err := client.Healthcheck(); err != nil {
		log.Warn().Err(err).Msg("holes API unreachable at startup")
	}

	directory := holes.NewDirectory(client, projectID,
		time.Duration(config.GetInt("holes.cacheTtlSeconds"))*time.Second, log)

	var store *recorder.Store
	if config.GetBool("recorder.enabled") {
		store, err = recorder.Open(recorder.Config{
			UsePostgres: config.GetBool("recorder.db.usePostgres"),
			SQLitePath:  config.GetString("recorder.sqlitePath"),
			Host:        config.GetString("recorder.db.host"),
			Port:        config.GetInt("recorder.db.port"),
			User:        config.GetString("recorder.db.username"),
			Password:    config.GetString("recorder.db.password"),
			Database:    config.GetString("recorder.db.database"),
		}, log)
		if err != nil {
			return fmt.Errorf("opening recorder: %w", err)
		}
	}

	subscriber, err := mqtt.New(mqtt.Config{
		Host:       config.GetString("mqtt.host"),
		Port:       config.GetInt("mqtt.port"),
		Username:   config.GetString("mqtt.username"),
		Password:   config.GetString("mqtt.password"),
		TLSEnabled: config.GetBool("mqtt.tls"),
		CACerts:    config.GetString("mqtt.caCerts"),
		ClientID:   config.GetString("mqtt.clientId"),
		QoS:        byte(config.GetInt("mqtt.qos")),
	}, log)
	if err != nil {
		return fmt.Errorf("creating mqtt subscriber: %w", err)
	}

	var rec correlation.Recorder
	if store != nil {
		rec = store
	}
	service, err := correlation.New(subscriber, directory, client, rec, correlation.Config{
		Topic:             config.GetString("mqtt.topic"),
		MaxDistanceMeters: config.GetFloat64("match.maxDistanceMeters"),
		SensorID:          config.GetString("sensor.positionSensorId"),
		ProjectID:         projectID,
	}, log)
	if err != nil {
		return fmt.Errorf("creating correlation service: %w", err)
	}

	deliveryQueue, err := telemetry.New(client, telemetry.Config{
		ProjectID:     projectID,
		HoleID:        config.GetString("telemetry.holeId"),
		SensorID:      config.GetString("sensor.telemetrySensorId"),
		Capacity:      config.GetInt("telemetry.queueCapacity"),
		FlushInterval: time.Duration(config.GetInt("telemetry.flushIntervalSeconds")) * time.Second,
	}, log)
	if err != nil {
		return fmt.Errorf("creating delivery queue: %w", err)
	}

	var flusher *stats.Flusher
	if config.GetBool("influx.enabled") {
		manager := stats.NewManager(log,
			logging.LogFilePath(config.GetString("logsDir"), "influx_backup", time.Now())+".gz")
		if err := manager.Connect(); err != nil {
			log.Warn().Err(err).Msg("stats manager unavailable, counters not exported")
		} else {
			defer manager.Close()
			flusher = stats.NewFlusher(manager, service, deliveryQueue,
				time.Duration(config.GetInt("influx.flushIntervalSeconds"))*time.Second, log)
		}
	}

	if err := service.Start(); err != nil {
		return fmt.Errorf("starting correlation: %w", err)
	}
	deliveryQueue.Start()
	if flusher != nil {
		flusher.Start()
	}

	log.Info().Str("project", projectID).
		Str("broker", fmt.Sprintf("%s:%d", config.GetString("mqtt.host"), config.GetInt("mqtt.port"))).
		Msg("drilltrack running")

	waitForShutdown(log)

	// Stop intake first so the final telemetry flush sees the last sample.
	service.Stop()
	deliveryQueue.Stop()
	if flusher != nil {
		flusher.Stop()
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("closing recorder failed")
		}
	}

	log.Info().Msg("drilltrack stopped")
	return nil
}

func waitForShutdown(log zerolog.Logger) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Info().Str("signal", sig.String()).Msg("shutting down")
}
