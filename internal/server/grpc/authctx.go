package grpcserver

import (
	"context"
)

type ctxKey string

const userIDKey ctxKey = "onepass.uid"

// WithUserID stores an authenticated uid in context.
func WithUserID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, userIDKey, uid)
}

// UserIDFromCtx fetches the uid stored by WithUserID.
func UserIDFromCtx(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}
