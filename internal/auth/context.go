package auth

import (
	"context"

	"google.golang.org/grpc/metadata"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	sessionIDKey contextKey = "session_id"

	HeaderUserID    = "x-user-id"
	HeaderSessionID = "x-session-id"
)

type UserContext struct {
	UserID    string
	SessionID string
}

// WithUser stores the caller identity on ctx. Empty fields are skipped.
func WithUser(ctx context.Context, u UserContext) context.Context {
	if u.UserID != "" {
		ctx = context.WithValue(ctx, userIDKey, u.UserID)
	}
	if u.SessionID != "" {
		ctx = context.WithValue(ctx, sessionIDKey, u.SessionID)
	}
	return ctx
}

// GetUserID prefers a value set by the interceptor and falls back to
// incoming metadata.
func GetUserID(ctx context.Context) string {
	return lookup(ctx, userIDKey, HeaderUserID)
}

func GetSessionID(ctx context.Context) string {
	return lookup(ctx, sessionIDKey, HeaderSessionID)
}

func lookup(ctx context.Context, key contextKey, header string) string {
	if val, ok := ctx.Value(key).(string); ok {
		return val
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if val := md.Get(header); len(val) > 0 {
			return val[0]
		}
	}
	return ""
}
