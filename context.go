package phoneauth

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type platformContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses
// it for per-IP send throttling and audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Environment
// detection uses it to recognize native WebView shells.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithPlatform attaches an explicit platform hint to ctx. A hint always
// wins over user-agent sniffing.
func WithPlatform(ctx context.Context, platform Platform) context.Context {
	return context.WithValue(ctx, platformContextKey{}, platform)
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

func platformFromContext(ctx context.Context) (Platform, bool) {
	if ctx == nil {
		return PlatformWeb, false
	}

	platform, ok := ctx.Value(platformContextKey{}).(Platform)
	return platform, ok
}
