package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting_NotRegistered(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.LinesRead.Add(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(a.LinesRead))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.LinesRead))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	require.NoError(t, func() error {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return err
			}
		}
		return nil
	}())

	m.MessagesDecoded.WithLabelValues("1").Inc()
	m.DecodeErrors.WithLabelValues("checksum").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesDecoded.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecodeErrors.WithLabelValues("checksum")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "maritimeviz_messages_decoded_total")
	assert.Contains(t, names, "maritimeviz_lines_read_total")
}
