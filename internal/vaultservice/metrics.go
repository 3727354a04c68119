package vaultservice

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

var (
	// scansTotal counts scan runs.
	// Labels: status (success, error)
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultlens",
		Subsystem: "scan",
		Name:      "runs_total",
		Help:      "Total vault scans by status",
	}, []string{"status"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vaultlens",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Vault scan duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// scanNotes counts notes seen by scans.
	// Labels: outcome (parsed, skipped, removed, failed)
	scanNotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultlens",
		Subsystem: "scan",
		Name:      "notes_total",
		Help:      "Notes processed by scans, by outcome",
	}, []string{"outcome"})

	// analysesTotal counts analysis runs.
	// Labels: status (success, error)
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vaultlens",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Total analysis runs by status",
	}, []string{"status"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vaultlens",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Analysis run duration in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	// brokenLinks tracks unresolved links after the latest analysis.
	// Labels: vault (vault id)
	brokenLinks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vaultlens",
		Subsystem: "analysis",
		Name:      "broken_links",
		Help:      "Unresolved links found by the latest analysis",
	}, []string{"vault"})
)

func recordScan(status string, d time.Duration, parsed, skipped, removed, failed int) {
	scansTotal.WithLabelValues(status).Inc()
	if status != statusSuccess {
		return
	}
	scanDuration.Observe(d.Seconds())
	scanNotes.WithLabelValues("parsed").Add(float64(parsed))
	scanNotes.WithLabelValues("skipped").Add(float64(skipped))
	scanNotes.WithLabelValues("removed").Add(float64(removed))
	scanNotes.WithLabelValues("failed").Add(float64(failed))
}

func recordAnalysis(status string, d time.Duration) {
	analysesTotal.WithLabelValues(status).Inc()
	if status == statusSuccess {
		analysisDuration.Observe(d.Seconds())
	}
}
