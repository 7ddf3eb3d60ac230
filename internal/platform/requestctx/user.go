package requestctx

import "context"

// userIDContextKey is the context key for the acting user.
type userIDContextKey struct{}

// WithUserID attaches the acting user's identifier to the context. Events
// appended under that context get attributed to this user when the event
// itself carries none.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// UserIDFromContext returns the acting user's identifier, or the empty
// string when the context carries none.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	userID, _ := ctx.Value(userIDContextKey{}).(string)
	return userID
}
