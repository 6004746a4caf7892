package middlewares

// gin context keys; handlers.requestIDFrom reads the same literal.
const (
	CtxRequestID = "request_id"
)
