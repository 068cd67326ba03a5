package impact

import (
	"strings"
	"testing"
)

func TestNewAnalysisLimits(t *testing.T) {
	limits := NewAnalysisLimits()

	if limits.Confidence != ConfidenceNone {
		t.Errorf("expected ConfidenceNone, got %s", limits.Confidence)
	}
	if limits.Notes == nil {
		t.Error("expected non-nil Notes slice")
	}
	if len(limits.Notes) != 0 {
		t.Errorf("expected empty Notes slice, got %d items", len(limits.Notes))
	}
}

func TestAddNote(t *testing.T) {
	limits := NewAnalysisLimits()

	limits.AddNote("First note")
	limits.AddNote("Second note")
	if len(limits.Notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(limits.Notes))
	}
	if limits.Notes[0] != "First note" || limits.Notes[1] != "Second note" {
		t.Errorf("unexpected notes %v", limits.Notes)
	}
}

func TestHasLimitations(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func() *AnalysisLimits
		expected  bool
	}{
		{
			name: "no limitations",
			setupFunc: func() *AnalysisLimits {
				limits := NewAnalysisLimits()
				limits.Confidence = ConfidenceFull
				return limits
			},
			expected: false,
		},
		{
			name: "has note",
			setupFunc: func() *AnalysisLimits {
				limits := NewAnalysisLimits()
				limits.Confidence = ConfidenceFull
				limits.AddNote("Some limitation")
				return limits
			},
			expected: true,
		},
		{
			name: "partial confidence",
			setupFunc: func() *AnalysisLimits {
				limits := NewAnalysisLimits()
				limits.Confidence = ConfidencePartial
				return limits
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.setupFunc().HasLimitations(); got != tt.expected {
				t.Errorf("HasLimitations() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDetermineLimits(t *testing.T) {
	tests := []struct {
		name       string
		usage      UsageResult
		confidence EvidenceConfidence
		notes      []string
	}{
		{
			name:       "not scanned",
			usage:      UsageResult{},
			confidence: ConfidenceFull,
		},
		{
			name:       "complete scan",
			usage:      UsageResult{Scanned: true, FilesScanned: 10, FilesTotal: 10},
			confidence: ConfidenceFull,
		},
		{
			name:       "skipped files",
			usage:      UsageResult{Scanned: true, FilesScanned: 8, FilesSkipped: 2, FilesTotal: 10},
			confidence: ConfidencePartial,
			notes:      []string{"2 files skipped"},
		},
		{
			name:       "incomplete",
			usage:      UsageResult{Scanned: true, FilesScanned: 6, FilesTotal: 10, Incomplete: true},
			confidence: ConfidencePartial,
			notes:      []string{"6 of 10 files scanned"},
		},
		{
			name:       "empty codebase",
			usage:      UsageResult{Scanned: true},
			confidence: ConfidenceNone,
			notes:      []string{"no files available"},
		},
		{
			name: "comment usages",
			usage: UsageResult{Scanned: true, FilesScanned: 1, FilesTotal: 1, Records: []UsageRecord{
				{File: "a.go", Line: 1, InComment: true},
			}},
			confidence: ConfidenceFull,
			notes:      []string{"1 usages are on comment lines"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := DetermineLimits(&tt.usage)
			if limits.Confidence != tt.confidence {
				t.Errorf("Confidence = %s, want %s", limits.Confidence, tt.confidence)
			}
			if len(limits.Notes) != len(tt.notes) {
				t.Fatalf("Notes = %v, want %d notes", limits.Notes, len(tt.notes))
			}
			for i, want := range tt.notes {
				if !strings.Contains(limits.Notes[i], want) {
					t.Errorf("note %q should contain %q", limits.Notes[i], want)
				}
			}
		})
	}
}
