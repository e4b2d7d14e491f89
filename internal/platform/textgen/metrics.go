package textgen

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/icu/isbar/internal/platform/textgen"

type requestMetrics struct {
	count    metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *requestMetrics
)

// loadMetrics builds the instruments from the global meter provider once.
// Without an installed provider otel hands out no-op instruments.
func loadMetrics() *requestMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter(meterName)

		count, err := meter.Int64Counter(
			"textgen.request.count",
			metric.WithDescription("Number of text generation requests"),
		)
		if err != nil {
			return
		}
		duration, err := meter.Float64Histogram(
			"textgen.request.duration",
			metric.WithDescription("Text generation request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		errs, err := meter.Int64Counter(
			"textgen.request.errors",
			metric.WithDescription("Number of failed text generation requests"),
		)
		if err != nil {
			return
		}
		metrics = &requestMetrics{count: count, duration: duration, errors: errs}
	})
	return metrics
}

func recordRequest(ctx context.Context, model string, statusCode int, elapsed time.Duration, err error) {
	m := loadMetrics()
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}
	opt := metric.WithAttributes(attrs...)

	m.count.Add(ctx, 1, opt)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), opt)
	if err != nil {
		m.errors.Add(ctx, 1, opt)
	}
}
