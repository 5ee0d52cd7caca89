package metrics

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cschleiden/go-wfnet/metrics"
)

type sample struct {
	name  string
	tags  metrics.Tags
	value float64
}

type recordingClient struct {
	noopMetricsClient

	samples []sample
}

func (c *recordingClient) Distribution(name string, tags metrics.Tags, value float64) {
	c.samples = append(c.samples, sample{name, tags, value})
}

func Test_Timer_ReportsMilliseconds(t *testing.T) {
	c := clock.NewMock()
	client := &recordingClient{}

	timer := NewTimer(client, c, "tx", metrics.Tags{"backend": "memory"})
	c.Add(1500 * time.Millisecond)

	require.Equal(t, 1500*time.Millisecond, timer.Stop())
	require.Equal(t, []sample{{"tx", metrics.Tags{"backend": "memory"}, 1500}}, client.samples)
}
