// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dualcap"

var (
	CaptureAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "capture_attempts_total",
		Help:      "Paired capture acquisitions by result.",
	}, []string{"result"})

	Capturing = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "capturing",
		Help:      "1 while both live handles are held.",
	})

	Recording = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recording",
		Help:      "1 while both encoders are recording.",
	})

	Artifacts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifacts_total",
		Help:      "Finalized recordings offered to the sink, by source and result.",
	}, []string{"source", "result"})

	ArtifactBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_bytes_total",
		Help:      "Bytes of finalized recordings, by source.",
	}, []string{"source"})

	DriftCorrections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "drift_corrections_total",
		Help:      "Forced seeks of the secondary surface to the master position.",
	})

	ResourceURLs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "resource_urls_outstanding",
		Help:      "Resource URLs created and not yet revoked.",
	})

	DeviceProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_processes",
		Help:      "Running capture tool processes.",
	})

	DeviceBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "device_bytes_total",
		Help:      "Bytes read from capture tools, by device label.",
	}, []string{"device"})

	Viewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "viewers_connected",
		Help:      "Connected viewer websocket sessions.",
	})
)

func init() {
	prometheus.MustRegister(
		CaptureAttempts,
		Capturing,
		Recording,
		Artifacts,
		ArtifactBytes,
		DriftCorrections,
		ResourceURLs,
		DeviceProcesses,
		DeviceBytes,
		Viewers,
	)
}

// BoolGauge sets g to 1 or 0.
func BoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
