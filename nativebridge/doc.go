// Package nativebridge adapts mobile-shell phone verification plugins to
// the NativePluginProvider interface. Shell plugins expose one of two
// call shapes depending on their generation; the bridge selects an
// adapter per configured shape and probes capability before every use so
// a missing or stale plugin degrades to ErrPluginUnavailable instead of
// crashing the shell.
package nativebridge
