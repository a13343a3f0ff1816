// Package otel bridges engine metrics onto an OpenTelemetry meter with
// observable instruments read at collection time.
package otel
