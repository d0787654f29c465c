package tracing_test

import (
	"context"
	"testing"

	"webshot/internal/tracing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetupWithoutEndpointKeepsGlobalProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := tracing.Setup(context.Background(), "", "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}

	if otel.GetTracerProvider() != before {
		t.Errorf("global tracer provider replaced without an endpoint")
	}
}

func TestSetupInstallsSDKProvider(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(before)
	})

	ctx := context.Background()
	// the gRPC client connects lazily, so no collector is needed here
	shutdown, err := tracing.Setup(ctx, "127.0.0.1:4317", "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("got %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	_ = shutdown(ctx)
}
