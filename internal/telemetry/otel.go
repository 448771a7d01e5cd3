package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wintech-vn/drilltrack/internal/telemetry"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
