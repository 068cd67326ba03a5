// Package metrics records what an analysis run did as prometheus collectors
// on a caller-supplied registry.
package metrics

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"changeguard/internal/impact"
)

const namespace = "changeguard"

// Stage names used for the stage duration histogram
const (
	StageParse    = "parse"
	StageExtract  = "extract"
	StageResolve  = "resolve"
	StageUsage    = "usage"
	StageProfile  = "profile"
	StageClassify = "classify"
	StageAssemble = "assemble"
)

// Metrics holds the run collectors. A nil *Metrics records nothing.
type Metrics struct {
	FilesScanned         prometheus.Counter
	FilesSkipped         prometheus.Counter
	IncompleteCandidates prometheus.Counter
	Candidates           *prometheus.CounterVec   // by change kind
	Findings             *prometheus.CounterVec   // by severity
	StageDuration        *prometheus.HistogramVec // by stage
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FilesScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_files_scanned_total",
			Help:      "Files scanned for usages, summed over candidates.",
		}),
		FilesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_files_skipped_total",
			Help:      "Binary or unreadable files skipped during the usage scan, summed over candidates.",
		}),
		IncompleteCandidates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_incomplete_candidates_total",
			Help:      "Candidates whose usage scan did not finish before the deadline.",
		}),
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Changed declarations extracted from the diff.",
		}, []string{"kind"}),
		Findings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "Findings by severity.",
		}, []string{"severity"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordCandidates counts candidates by change kind
func (m *Metrics) RecordCandidates(candidates []impact.Candidate) {
	if m == nil {
		return
	}
	for i := range candidates {
		m.Candidates.WithLabelValues(string(candidates[i].Kind)).Inc()
	}
}

// RecordUsage adds the per-candidate file counts of a usage scan
func (m *Metrics) RecordUsage(usages map[impact.CandidateKey]impact.UsageResult) {
	if m == nil {
		return
	}
	for _, u := range usages {
		m.FilesScanned.Add(float64(u.FilesScanned))
		m.FilesSkipped.Add(float64(u.FilesSkipped))
		if u.Incomplete {
			m.IncompleteCandidates.Inc()
		}
	}
}

// RecordFindings counts findings by severity
func (m *Metrics) RecordFindings(findings []impact.Finding) {
	if m == nil {
		return
	}
	for i := range findings {
		m.Findings.WithLabelValues(string(findings[i].Severity)).Inc()
	}
}

// WriteText writes every gathered family in the prometheus text exposition format
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextFile writes the text exposition to path
func WriteTextFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	if err := WriteText(f, g); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
