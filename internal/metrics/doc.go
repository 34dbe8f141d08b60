// Package metrics defines Prometheus metrics for the photo ingest
// service: queue depth and transitions, worker pool activity, pipeline
// stage durations and the geocoding rate gate.
//
// All metrics are registered via promauto at package init and exposed on
// the admin router's /metrics endpoint.
package metrics
