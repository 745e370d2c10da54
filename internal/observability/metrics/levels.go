package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// LevelsFunc returns the latest RMS and peak levels per channel in dBFS.
type LevelsFunc func() (rms, peak []float64, ok bool)

// LevelMetrics exports audio levels, read from the level meter at scrape
// time. Nothing is exported while levels are unavailable.
type LevelMetrics struct {
	levels   LevelsFunc
	rmsDesc  *prometheus.Desc
	peakDesc *prometheus.Desc
}

// NewLevelMetrics creates and registers level metrics backed by levels.
func NewLevelMetrics(registry *prometheus.Registry, levels LevelsFunc) (*LevelMetrics, error) {
	m := &LevelMetrics{
		levels: levels,
		rmsDesc: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", "recorder_level_rms_dbfs"),
			"Latest RMS level per channel in dBFS", []string{"channel"}, nil),
		peakDesc: prometheus.NewDesc(prometheus.BuildFQName(Namespace, "", "recorder_level_peak_dbfs"),
			"Latest peak level per channel in dBFS", []string{"channel"}, nil),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register level metrics: %w", err)
	}
	return m, nil
}

// Describe implements the prometheus.Collector interface.
func (m *LevelMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.rmsDesc
	ch <- m.peakDesc
}

// Collect implements the prometheus.Collector interface.
func (m *LevelMetrics) Collect(ch chan<- prometheus.Metric) {
	rms, peak, ok := m.levels()
	if !ok {
		return
	}
	for i, v := range rms {
		ch <- prometheus.MustNewConstMetric(m.rmsDesc, prometheus.GaugeValue, v, strconv.Itoa(i))
	}
	for i, v := range peak {
		ch <- prometheus.MustNewConstMetric(m.peakDesc, prometheus.GaugeValue, v, strconv.Itoa(i))
	}
}
