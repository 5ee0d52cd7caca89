// Package metrics defines the client the engine and its backends report metrics through. The default
// client discards everything; plug in an adapter for the metrics system of your choice with
// backend.WithMetrics.
package metrics

// Tags are dimensions attached to a metric, e.g. the backend or the state a workflow finished in.
type Tags map[string]string

type Client interface {
	// Counter adds value to the named counter.
	Counter(name string, tags Tags, value int64)

	// Distribution records a sample, timers report milliseconds.
	Distribution(name string, tags Tags, value float64)

	Gauge(name string, tags Tags, value int64)

	// WithTags returns a client adding the given tags to every metric.
	WithTags(tags Tags) Client
}
