// Package config loads the drilltrack configuration file and defaults.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Load reads configuration from drilltrack.cfg.json and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./drilltracklogs")

	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", "1883")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.tls", false)
	viper.SetDefault("mqtt.caCerts", "")
	viper.SetDefault("mqtt.topic", "device/+/upload")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.clientId", "drilltrack")

	viper.SetDefault("api.serverUrl", "http://localhost:3000/api")
	viper.SetDefault("api.timeoutSeconds", 10)

	viper.SetDefault("project.id", "")
	viper.SetDefault("sensor.positionSensorId", "GNSS_RIG")
	viper.SetDefault("sensor.telemetrySensorId", "LASER_SENSOR")

	viper.SetDefault("match.maxDistanceMeters", 10.0)
	viper.SetDefault("holes.cacheTtlSeconds", 300)

	viper.SetDefault("telemetry.holeId", "")
	viper.SetDefault("telemetry.flushIntervalSeconds", 2)
	viper.SetDefault("telemetry.queueCapacity", 1000)

	viper.SetDefault("recorder.enabled", false)
	viper.SetDefault("recorder.sqlitePath", "./drilltrack.db")
	viper.SetDefault("recorder.db.host", "localhost")
	viper.SetDefault("recorder.db.port", "5432")
	viper.SetDefault("recorder.db.username", "postgres")
	viper.SetDefault("recorder.db.password", "postgres")
	viper.SetDefault("recorder.db.database", "drilltrack")
	viper.SetDefault("recorder.db.usePostgres", false)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "drilltrack-metrics")
	viper.SetDefault("influx.bucket", "drilltrack_stats")
	viper.SetDefault("influx.flushIntervalSeconds", 10)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetConfigName("drilltrack.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
