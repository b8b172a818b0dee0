// Package internaldefs exposes the stable metric name table shared by
// exporter implementations.
//
// Counter and histogram definitions live here so the Prometheus and
// OTel exporters expose identical names and bucket boundaries. A
// change here affects all exporters simultaneously.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
