package metrics

import (
	m "github.com/cschleiden/go-wfnet/metrics"
)

type noopMetricsClient struct{}

// NewNoopMetricsClient returns the client used when no metrics client is configured.
func NewNoopMetricsClient() *noopMetricsClient {
	return &noopMetricsClient{}
}

var _ m.Client = (*noopMetricsClient)(nil)

func (*noopMetricsClient) Counter(string, m.Tags, int64) {}

func (*noopMetricsClient) Distribution(string, m.Tags, float64) {}

func (*noopMetricsClient) Gauge(string, m.Tags, int64) {}

func (nmc *noopMetricsClient) WithTags(m.Tags) m.Client {
	return nmc
}
