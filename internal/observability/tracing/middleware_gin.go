package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/fieldbooks/internal/observability/context"
	"github.com/smallbiznis/fieldbooks/internal/orgcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const apiPrefix = "/api/v1/"

// GinMiddleware opens a server span per request. The span is renamed to the matched route
// once routing is done and tagged with the tenant, the acting role and the document type.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("fieldbooks/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		ctx = withRequestBaggage(ctx, span)

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		span.SetName("HTTP " + method + " " + route)

		// Auth runs inside c.Next, so tenant and actor are only known afterwards.
		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", c.Writer.Status()),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		if docType := DocumentType(route); docType != "" {
			attrs = append(attrs, attribute.String("document_type", docType))
		}
		reqCtx := c.Request.Context()
		if orgID, ok := orgcontext.OrgIDFromContext(reqCtx); ok {
			attrs = append(attrs, attribute.String("org_id", orgID.String()))
		}
		if actor, ok := orgcontext.ActorFromContext(reqCtx); ok && actor.Role != "" {
			attrs = append(attrs, attribute.String("actor.role", actor.Role))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if c.Writer.Status() >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, "request error")
		}
		span.End()
	}
}

func withRequestBaggage(ctx context.Context, span trace.Span) context.Context {
	requestID := obscontext.RequestIDFromContext(ctx)
	if requestID == "" {
		return ctx
	}
	span.SetAttributes(attribute.String("request_id", requestID))
	member, err := baggage.NewMember("request_id", requestID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.New(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// DocumentType returns the first path segment under /api/v1, e.g. "invoices" for
// /api/v1/invoices/:id/payments. Routes outside the API have no document type.
func DocumentType(route string) string {
	if !strings.HasPrefix(route, apiPrefix) {
		return ""
	}
	rest := strings.TrimPrefix(route, apiPrefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}
