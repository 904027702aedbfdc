package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxbase-eu/bundlesize/internal/observability"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	// Enabled controls whether tracing is active
	Enabled bool

	// SkipPaths are paths that should not be traced (e.g., /health, /metrics)
	SkipPaths []string
}

// DefaultTracingConfig returns the configuration used by the server
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// TracingMiddleware starts a server span per request. The span context is
// installed as the request's user context so handlers that pass
// c.UserContext() on to the bundling pipeline produce child spans.
func TracingMiddleware(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("bundlesize-http")

	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		if skipPaths[c.Path()] {
			return c.Next()
		}
		path := utils.CopyString(c.Path())
		method := utils.CopyString(c.Method())

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		// the matched route is only known once the router has run; until
		// then the span is named after the raw path
		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", method, path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(method),
				semconv.HTTPScheme(c.Protocol()),
				attribute.String("http.target", path),
				attribute.String("http.request_id", requestID(c)),
				attribute.String("net.peer.ip", c.IP()),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// unmatched requests stop at this middleware's own "/" route
		route := utils.CopyString(c.Route().Path)
		if route == "" || (route == "/" && path != "/") {
			route = path
		}
		span.SetName(fmt.Sprintf("%s %s", method, route))

		status := c.Response().StatusCode()
		span.SetAttributes(
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(status),
			attribute.Int("http.response_size", len(c.Response().Body())),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}
}

// GetTraceID returns the trace ID of the request span, or "" when the
// request is not traced.
func GetTraceID(c *fiber.Ctx) string {
	return observability.ExtractTraceID(c.UserContext())
}
