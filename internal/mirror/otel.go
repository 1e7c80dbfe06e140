package mirror

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/niko2011p/Tracker-Tartufi-FunghiRepository002-sub000/internal/mirror"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
