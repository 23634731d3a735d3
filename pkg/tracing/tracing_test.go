package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tokmz/scatter/pkg/config"
	"github.com/tokmz/scatter/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"grpc", func(c *Config) { c.Exporter = ExporterOTLPGRPC }, false},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
		{"rate too high", func(c *Config) { c.Ratio = 1.5 }, true},
		{"unknown exporter", func(c *Config) { c.Exporter = "jaeger" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TracingSettings{
		Enabled:      true,
		ServiceName:  "relay",
		Exporter:     ExporterStdout,
		Endpoint:     "collector:4318",
		SamplingType: "ratio",
		SamplingRate: 0.25,
	})

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "relay", cfg.ServiceName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ExporterStdout, cfg.Exporter)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.Equal(t, SampleRatio, cfg.Sampler)
	assert.Equal(t, 0.25, cfg.Ratio)
}

func TestProviderDisabledUsesNoop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exporter = ExporterStdout
	tp, err := NewTracerProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.Equal(t, ExporterNoop, cfg.Exporter)

	ctx, span := otel.Tracer("probe").Start(context.Background(), "probe")
	assert.NotEmpty(t, TraceID(ctx))
	span.End()

	assert.NoError(t, Shutdown(context.Background()))
	assert.NoError(t, Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestSampler(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{SampleAlways, "AlwaysOnSampler"},
		{SampleNever, "AlwaysOffSampler"},
		{SampleRatio, "TraceIDRatioBased{0.5}"},
		{"", "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Contains(t, sampler(tt.kind, 0.5).Description(), tt.want)
		})
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	r := gin.New()
	r.Use(Middleware(WithFilter(func(c *gin.Context) bool { return c.Request.URL.Path != "/health" })))
	r.GET("/stats/:id", func(c *gin.Context) {
		c.String(http.StatusOK, TraceID(c.Request.Context()))
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("traceparent"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /stats/:id", spans[0].Name())
	assert.Equal(t, "GET /boom", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
