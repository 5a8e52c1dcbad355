// Package sinks provides broadcast.Sink implementations that tee the status
// stream into logs, Prometheus collectors, the crawl-history store and the
// completion notifier.
package sinks
