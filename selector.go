package phoneauth

import (
	"context"
	"strings"
)

// SelectProvider picks the challenge mechanism for one send. Pure and
// side-effect free; the engine re-evaluates it on every send rather than
// caching the answer, because plugin availability changes at runtime.
//
// Inside a native shell the interactive web path is never selected. The
// embedded WebView cannot complete the widget attestation and the
// provider responds with throttling errors that look like abuse.
func SelectProvider(env Environment) ChallengeProviderKind {
	if env.Native() {
		if env.PluginAvailable {
			return ProviderNativePlugin
		}
		return ProviderServerDispatch
	}
	return ProviderInteractiveWeb
}

// DetectEnvironment builds the Environment for one send. An explicit
// platform hint on ctx wins; otherwise the User-Agent is sniffed for
// known WebView signatures. pluginAvailable is the live probe result
// supplied by the engine.
func DetectEnvironment(ctx context.Context, pluginAvailable bool) Environment {
	env := Environment{PluginAvailable: pluginAvailable}

	if platform, ok := platformFromContext(ctx); ok {
		env.Platform = platform
		env.InsideWebView = platform != PlatformWeb
		return env
	}

	ua := userAgentFromContext(ctx)
	env.Platform, env.InsideWebView = sniffUserAgent(ua)
	return env
}

// sniffUserAgent recognizes the WebView markers Android and iOS shells
// put in their User-Agent strings. A plain mobile browser is reported as
// PlatformWeb: only embedded views misbehave with the interactive
// widget.
func sniffUserAgent(ua string) (Platform, bool) {
	lower := strings.ToLower(ua)

	if strings.Contains(lower, "android") {
		if strings.Contains(lower, "; wv)") || strings.Contains(lower, "version/") {
			return PlatformAndroid, true
		}
		return PlatformWeb, false
	}

	if strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") {
		// Safari proper always advertises itself; embedded WKWebView
		// does not.
		if strings.Contains(lower, "safari/") {
			return PlatformWeb, false
		}
		return PlatformIOS, true
	}

	return PlatformWeb, false
}
