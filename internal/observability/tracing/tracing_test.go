package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestSafeAttributesDropsUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/invoices"),
		attribute.String("customer.email", "a@b.c"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(errors.New("insert invoice: UNIQUE constraint failed")), "insert invoice")
}

func TestGinMiddlewareStartsSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, err := NewProvider(nil, Config{Enabled: false, ServiceName: "fieldbooks"}, nil)
	require.NoError(t, err)

	r := gin.New()
	r.Use(GinMiddleware())
	var seen bool
	r.GET("/ping", func(c *gin.Context) {
		seen = trace.SpanContextFromContext(c.Request.Context()).IsValid()
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.True(t, seen)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDocumentType(t *testing.T) {
	cases := map[string]string{
		"/api/v1/invoices/:id/payments": "invoices",
		"/api/v1/vendor-bills":          "vendor-bills",
		"/health":                       "",
		"unknown":                       "",
	}
	for route, want := range cases {
		assert.Equal(t, want, DocumentType(route), route)
	}
}
