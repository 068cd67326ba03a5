package impact

import "fmt"

// EvidenceConfidence describes how complete the usage evidence for a candidate is
type EvidenceConfidence string

const (
	ConfidenceFull    EvidenceConfidence = "full"    // Every eligible file was scanned
	ConfidencePartial EvidenceConfidence = "partial" // Some files were skipped or the scan was cut short
	ConfidenceNone    EvidenceConfidence = "none"    // No files were available to scan
)

// AnalysisLimits describes the limitations of the evidence behind one finding
type AnalysisLimits struct {
	Confidence EvidenceConfidence
	Notes      []string
}

// NewAnalysisLimits creates a new AnalysisLimits with default values
func NewAnalysisLimits() *AnalysisLimits {
	return &AnalysisLimits{
		Confidence: ConfidenceNone,
		Notes:      make([]string, 0),
	}
}

// AddNote adds a limitation note
func (al *AnalysisLimits) AddNote(note string) {
	al.Notes = append(al.Notes, note)
}

// HasLimitations returns true if the evidence is not complete
func (al *AnalysisLimits) HasLimitations() bool {
	return al.Confidence != ConfidenceFull || len(al.Notes) > 0
}

// DetermineLimits inspects a usage result and reports what it cannot vouch for
func DetermineLimits(u *UsageResult) *AnalysisLimits {
	limits := NewAnalysisLimits()
	if !u.Scanned {
		limits.Confidence = ConfidenceFull
		return limits
	}

	switch {
	case u.Incomplete:
		limits.Confidence = ConfidencePartial
		limits.AddNote(fmt.Sprintf("usage scan did not finish: %d of %d files scanned", u.FilesScanned, u.FilesTotal))
	case u.FilesTotal == 0:
		limits.Confidence = ConfidenceNone
		limits.AddNote("no files available to scan")
	case u.FilesSkipped > 0:
		limits.Confidence = ConfidencePartial
	default:
		limits.Confidence = ConfidenceFull
	}
	if u.FilesSkipped > 0 {
		limits.AddNote(fmt.Sprintf("%d files skipped", u.FilesSkipped))
	}
	if n := u.CommentCount(); n > 0 {
		limits.AddNote(fmt.Sprintf("%d usages are on comment lines and may be noise", n))
	}
	return limits
}
