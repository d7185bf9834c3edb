// Package logging provides context-aware logging utilities.
package logging

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type (
	// RequestIDKey is the context key for the request ID.
	RequestIDKey struct{}
	// UserIDKey is the context key for the authenticated user ID.
	UserIDKey struct{}
)

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey{}, id)
}

// WithUserID returns a copy of ctx carrying the authenticated user's ID.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey{}, id)
}

// GetRequestID returns the request ID from the context, or empty string if not found.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Logger returns a logger with the request_id and user_id from the context.
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if userID, ok := ctx.Value(UserIDKey{}).(uuid.UUID); ok {
		logger = logger.With("user_id", userID)
	}
	return logger
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
