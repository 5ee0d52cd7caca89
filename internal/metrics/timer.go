package metrics

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cschleiden/go-wfnet/metrics"
)

// Timer measures an operation, e.g. a backend transaction, against the configured clock.
type Timer struct {
	client metrics.Client
	clock  clock.Clock
	start  time.Time
	name   string
	tags   metrics.Tags
}

func NewTimer(client metrics.Client, clock clock.Clock, name string, tags metrics.Tags) *Timer {
	return &Timer{
		client: client,
		clock:  clock,
		start:  clock.Now(),
		name:   name,
		tags:   tags,
	}
}

// Stop reports the elapsed milliseconds as a distribution and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := t.clock.Since(t.start)
	t.client.Distribution(t.name, t.tags, float64(elapsed.Milliseconds()))

	return elapsed
}
