package monitoring

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/gin-gonic/gin"
)

// TraceHeader carries the request trace ID in both directions.
const TraceHeader = "X-Request-ID"

const maxTraceIDLen = 64

type traceKey struct{}

// TracingMiddleware tags every request with a trace ID. A caller-supplied
// X-Request-ID is kept when it is short and printable, otherwise a fresh one
// is generated. The ID is echoed on the response and stored on the request
// context for TraceID and Logger.WithContext.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(TraceHeader)
		if !validTraceID(id) {
			id = newTraceID()
		}

		// error responses read the ID back from the request header
		c.Request.Header.Set(TraceHeader, id)
		c.Header(TraceHeader, id)
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), id))

		c.Next()
	}
}

// WithTraceID returns ctx carrying id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace ID on ctx, or "".
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// WithContext returns a logger that tags records with the trace ID on ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	id := TraceID(ctx)
	if id == "" {
		return l
	}
	return &Logger{Logger: l.Logger.With("trace_id", id)}
}

func newTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
