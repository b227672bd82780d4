package identity

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type actorContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx for audit logging.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithActor attaches the identifier of the caller performing an administrative
// change (lock, unlock). It is recorded in the account's [AuditInfo.UpdatedBy].
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
