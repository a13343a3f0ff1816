// Package prometheus exposes engine metrics as a
// prometheus.Collector. Register the exporter with any Registerer and
// serve it with promhttp.
package prometheus
