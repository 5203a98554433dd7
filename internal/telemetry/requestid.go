package telemetry

import "context"

type requestIDKey struct{}

// ContextWithRequestID returns ctx carrying the request ID id. Outbound API calls
// made with the returned context forward it in X-Request-ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
