package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	shutdown, err := Setup(ctx, Config{
		Enabled:      true,
		ServiceName:  "mnemo-test",
		StdoutWriter: &buf,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	tracer := otel.Tracer("telemetry-test")
	_, span := tracer.Start(ctx, "test-span")
	span.End()

	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "test-span") {
		t.Errorf("expected exported span in output, got %q", buf.String())
	}
}
