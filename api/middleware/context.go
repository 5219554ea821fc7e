package middleware

import "context"

type contextKey string

const (
	ctxOperator  contextKey = "operator"
	ctxRequestID contextKey = "request_id"
)

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// OperatorFromContext returns the operator recorded by the Operator
// middleware, or an empty string.
func OperatorFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxOperator)
}

// WithOperator injects the operator identifier into the context.
func WithOperator(ctx context.Context, operator string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOperator, operator)
}

// RequestIDFromContext returns the id assigned by RequestID.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRequestID)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}
