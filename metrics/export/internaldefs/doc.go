// Package internaldefs carries the shared metric name and bucket tables
// used by the otel and prometheus exporters. It exists so the two
// exporters cannot drift apart on naming.
package internaldefs
