package logging

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	userIDKey    ctxKey = "user_id"
)

// ContextWithRequestID attaches the request identifier used in log lines.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request identifier, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// ContextWithUserID attaches the acting user id used in log lines.
func ContextWithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, id)
}

// Ctx returns the global logger enriched with request_id and user_id.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if ctx == nil {
		return &l
	}
	lc := l.With()
	if rid := RequestIDFromContext(ctx); rid != "" {
		lc = lc.Str("request_id", rid)
	}
	if uid, ok := ctx.Value(userIDKey).(string); ok && uid != "" {
		lc = lc.Str("user_id", uid)
	}
	out := lc.Logger()
	return &out
}
