package correlation

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/wintech-vn/drilltrack/internal/correlation"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
