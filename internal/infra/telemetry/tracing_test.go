package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/keishimizu26629/haircut-reservation-web-app-sub001/internal/infra/config"
)

func TestNewTracerProviderWithoutExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	tp, err := NewTracerProvider(context.Background(), config.TelemetrySettings{
		ServiceName:  "salon-session-guard",
		SamplingRate: 1,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewTracerProvider returned error: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "span")
	if !span.SpanContext().IsValid() {
		t.Fatalf("expected sampled span from the registered provider")
	}
	span.End()

	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}
