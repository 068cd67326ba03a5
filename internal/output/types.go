package output

import (
	"changeguard/internal/impact"
)

// Report is the result of one analysis run
type Report struct {
	Verdict     string                 `json:"verdict"`
	Summary     Summary                `json:"summary"`
	Profile     *impact.ProjectProfile `json:"profile,omitempty"`
	Breaking    []Entry                `json:"breaking"`
	Risky       []Entry                `json:"risky"`
	Safe        []Entry                `json:"safe,omitempty"`
	SafeSummary *SafeSummary           `json:"safeSummary,omitempty"`
	Warnings    []Warning              `json:"warnings,omitempty"`

	findings []impact.Finding // Breaking, Risky, Safe; diff order within each group
}

// Summary counts findings
type Summary struct {
	Total    int            `json:"total"`
	Breaking int            `json:"breaking"`
	Risky    int            `json:"risky"`
	Safe     int            `json:"safe"`
	ByKind   map[string]int `json:"byKind,omitempty"`
}

// SafeSummary stands in for the Safe group when details are not requested
type SafeSummary struct {
	Count   int            `json:"count"`
	ByKind  map[string]int `json:"byKind,omitempty"`
	Symbols []string       `json:"symbols,omitempty"`
}

// Entry is the serialized form of one finding
type Entry struct {
	Symbol      string            `json:"symbol"`
	File        string            `json:"file"`
	Line        int               `json:"line,omitempty"`
	Kind        impact.ChangeKind `json:"kind"`
	SymbolKind  impact.SymbolKind `json:"symbolKind"`
	NewName     string            `json:"newName,omitempty"`
	Severity    impact.Severity   `json:"severity"`
	Visibility  impact.Visibility `json:"visibility"`
	Evidence    []impact.Evidence `json:"evidence"`
	Impact      string            `json:"impact"`
	Remediation string            `json:"remediation"`
}

// Warning represents a run-level warning
type Warning struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
	Code     string `json:"code,omitempty"`
}

// Findings returns every finding grouped Breaking, Risky, Safe, in diff order within each group
func (r *Report) Findings() []impact.Finding {
	out := make([]impact.Finding, len(r.findings))
	copy(out, r.findings)
	return out
}

// MaxSeverity returns the worst severity in the report, Safe when empty
func (r *Report) MaxSeverity() impact.Severity {
	switch {
	case r.Summary.Breaking > 0:
		return impact.SeverityBreaking
	case r.Summary.Risky > 0:
		return impact.SeverityRisky
	default:
		return impact.SeveritySafe
	}
}

// Fails reports whether the report meets a fail-on threshold (breaking|risky|never)
func (r *Report) Fails(failOn string) bool {
	switch failOn {
	case "breaking":
		return r.Summary.Breaking > 0
	case "risky":
		return r.Summary.Breaking+r.Summary.Risky > 0
	default:
		return false
	}
}
