package output

import (
	"fmt"

	cgerrors "changeguard/internal/errors"
	"changeguard/internal/impact"
)

// NoBreakingVerdict is the aggregate verdict when nothing is breaking or risky
const NoBreakingVerdict = "No breaking changes detected"

// Options control report assembly
type Options struct {
	IncludeSafe bool                   // Render Safe findings in full instead of summarizing them
	Profile     *impact.ProjectProfile // Attached to the report when set
	Warnings    []Warning              // Run-level warnings (diff parsing, usage scan)
}

// Assemble groups findings into Breaking, Risky and Safe, keeping diff order
// inside each group, and derives the aggregate verdict.
func Assemble(findings []impact.Finding, opts Options) *Report {
	ordered := make([]impact.Finding, len(findings))
	copy(ordered, findings)
	SortFindings(ordered)

	r := &Report{
		Profile:  opts.Profile,
		Breaking: make([]Entry, 0),
		Risky:    make([]Entry, 0),
		Summary:  Summary{Total: len(ordered), ByKind: make(map[string]int)},
	}

	var breaking, risky, safe []impact.Finding
	for _, f := range ordered {
		r.Summary.ByKind[string(f.Candidate.Kind)]++
		switch f.Severity {
		case impact.SeverityBreaking:
			r.Breaking = append(r.Breaking, entryFor(f))
			breaking = append(breaking, f)
		case impact.SeverityRisky:
			r.Risky = append(r.Risky, entryFor(f))
			risky = append(risky, f)
		default:
			safe = append(safe, f)
		}
	}
	r.findings = make([]impact.Finding, 0, len(ordered))
	r.findings = append(r.findings, breaking...)
	r.findings = append(r.findings, risky...)
	r.findings = append(r.findings, safe...)

	r.Summary.Breaking = len(r.Breaking)
	r.Summary.Risky = len(r.Risky)
	r.Summary.Safe = len(safe)

	if len(safe) > 0 {
		if opts.IncludeSafe {
			for _, f := range safe {
				r.Safe = append(r.Safe, entryFor(f))
			}
		} else {
			r.SafeSummary = summarizeSafe(safe)
		}
	}

	r.Verdict = Verdict(r.Summary.Breaking, r.Summary.Risky)
	r.Warnings = collectWarnings(opts.Warnings, ordered)
	return r
}

// Verdict renders the aggregate verdict line
func Verdict(breaking, risky int) string {
	if breaking == 0 && risky == 0 {
		return NoBreakingVerdict
	}
	return fmt.Sprintf("%d breaking, %d risky", breaking, risky)
}

func entryFor(f impact.Finding) Entry {
	c := f.Candidate
	evidence := make([]impact.Evidence, len(f.Evidence))
	copy(evidence, f.Evidence)
	return Entry{
		Symbol:      c.QualifiedName(),
		File:        c.File,
		Line:        c.Line,
		Kind:        c.Kind,
		SymbolKind:  c.SymbolKind,
		NewName:     c.NewName,
		Severity:    f.Severity,
		Visibility:  f.Visibility,
		Evidence:    evidence,
		Impact:      f.Impact,
		Remediation: f.Remediation,
	}
}

func summarizeSafe(safe []impact.Finding) *SafeSummary {
	s := &SafeSummary{Count: len(safe), ByKind: make(map[string]int)}
	for _, f := range safe {
		s.ByKind[string(f.Candidate.Kind)]++
		s.Symbols = append(s.Symbols, f.Candidate.QualifiedName())
	}
	return s
}

// collectWarnings dedupes run warnings and adds one for incomplete usage evidence
func collectWarnings(run []Warning, findings []impact.Finding) []Warning {
	seen := make(map[string]bool)
	var out []Warning
	add := func(w Warning) {
		if w.Severity == "" {
			w.Severity = "warning"
		}
		if seen[w.Text] {
			return
		}
		seen[w.Text] = true
		out = append(out, w)
	}

	for _, w := range run {
		add(w)
	}

	incomplete := 0
	for i := range findings {
		if findings[i].HasTag(impact.TagEvidenceIncomplete) {
			incomplete++
		}
	}
	if incomplete > 0 {
		add(Warning{
			Severity: "warning",
			Text:     fmt.Sprintf("usage scan did not finish for %d candidates; their evidence is incomplete", incomplete),
			Code:     string(cgerrors.ScanTimeout),
		})
	}

	SortWarnings(out)
	return out
}
