package conversation

import "context"

type sessionKey struct{}

// WithSession tags every event and log line of runs under ctx with id.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionID returns the id set by WithSession, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func sessionTags(ctx context.Context, tags map[string]string) map[string]string {
	if id := SessionID(ctx); id != "" {
		tags["session_id"] = id
	}
	return tags
}
