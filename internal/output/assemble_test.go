package output

import (
	"reflect"
	"testing"

	"changeguard/internal/impact"
)

func finding(name, file string, order int, kind impact.ChangeKind, sev impact.Severity) impact.Finding {
	return impact.Finding{
		Candidate: impact.Candidate{
			Name:       name,
			File:       file,
			Kind:       kind,
			SymbolKind: impact.KindFunction,
			Order:      order,
			Line:       order + 1,
		},
		Severity:    sev,
		Visibility:  impact.VisibilityPublic,
		Evidence:    []impact.Evidence{{Kind: impact.EvidenceChange, Detail: string(kind)}},
		Impact:      name + " impact",
		Remediation: name + " remediation",
	}
}

func symbols(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Symbol)
	}
	return out
}

func TestAssemble_Groups(t *testing.T) {
	findings := []impact.Finding{
		finding("d", "x.go", 3, impact.ChangeRemoved, impact.SeverityRisky),
		finding("a", "x.go", 0, impact.ChangeRemoved, impact.SeveritySafe),
		finding("c", "x.go", 2, impact.ChangeRemoved, impact.SeverityBreaking),
		finding("b", "x.go", 1, impact.ChangeRenamed, impact.SeverityRisky),
		finding("e", "x.go", 4, impact.ChangeSignatureChanged, impact.SeverityBreaking),
		finding("f", "x.go", 5, impact.ChangeAdded, impact.SeveritySafe),
	}

	r := Assemble(findings, Options{})

	if got := symbols(r.Breaking); !reflect.DeepEqual(got, []string{"c", "e"}) {
		t.Errorf("Breaking = %v, want [c e]", got)
	}
	if got := symbols(r.Risky); !reflect.DeepEqual(got, []string{"b", "d"}) {
		t.Errorf("Risky = %v, want [b d]", got)
	}
	if r.Safe != nil {
		t.Errorf("Safe should be summarized, got %v", r.Safe)
	}
	if r.SafeSummary == nil || r.SafeSummary.Count != 2 || !reflect.DeepEqual(r.SafeSummary.Symbols, []string{"a", "f"}) {
		t.Fatalf("SafeSummary = %+v", r.SafeSummary)
	}
	if r.SafeSummary.ByKind["removed"] != 1 || r.SafeSummary.ByKind["added"] != 1 {
		t.Errorf("SafeSummary.ByKind = %v", r.SafeSummary.ByKind)
	}

	want := Summary{Total: 6, Breaking: 2, Risky: 2, Safe: 2, ByKind: map[string]int{
		"removed": 3, "renamed": 1, "signature_changed": 1, "added": 1,
	}}
	if !reflect.DeepEqual(r.Summary, want) {
		t.Errorf("Summary = %+v, want %+v", r.Summary, want)
	}
	if r.Verdict != "2 breaking, 2 risky" {
		t.Errorf("Verdict = %q", r.Verdict)
	}

	var order []string
	for _, f := range r.Findings() {
		order = append(order, f.Candidate.Name)
	}
	if !reflect.DeepEqual(order, []string{"c", "e", "b", "d", "a", "f"}) {
		t.Errorf("Findings() order = %v", order)
	}
}

func TestAssemble_IncludeSafe(t *testing.T) {
	findings := []impact.Finding{
		finding("a", "x.go", 0, impact.ChangeAdded, impact.SeveritySafe),
		finding("b", "x.go", 1, impact.ChangeRemoved, impact.SeveritySafe),
	}
	r := Assemble(findings, Options{IncludeSafe: true})

	if got := symbols(r.Safe); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Safe = %v, want [a b]", got)
	}
	if r.SafeSummary != nil {
		t.Error("SafeSummary should be nil when Safe is rendered")
	}
	if r.Verdict != NoBreakingVerdict {
		t.Errorf("Verdict = %q, want %q", r.Verdict, NoBreakingVerdict)
	}
}

func TestAssemble_Empty(t *testing.T) {
	r := Assemble(nil, Options{})
	if r.Verdict != NoBreakingVerdict {
		t.Errorf("Verdict = %q", r.Verdict)
	}
	if r.Summary.Total != 0 || len(r.Findings()) != 0 {
		t.Errorf("empty input should give an empty report: %+v", r)
	}
	if r.SafeSummary != nil {
		t.Error("no Safe findings means no SafeSummary")
	}
}

func TestAssemble_EntryCarriesEvidence(t *testing.T) {
	f := finding("getUser", "api/user.ts", 0, impact.ChangeRenamed, impact.SeverityBreaking)
	f.Candidate.NewName = "getUserById"
	f.Candidate.Container = "UserService"
	f.Evidence = append(f.Evidence, impact.Evidence{Kind: impact.EvidenceUsage, Detail: "src/a.ts:3"})

	r := Assemble([]impact.Finding{f}, Options{})
	e := r.Breaking[0]
	if e.Symbol != "UserService.getUser" || e.NewName != "getUserById" || e.Line != 1 {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Evidence) != 2 || e.Evidence[1].Detail != "src/a.ts:3" {
		t.Errorf("Evidence = %v", e.Evidence)
	}

	// Entries do not alias the finding's evidence slice
	f.Evidence[0].Detail = "mutated"
	if e.Evidence[0].Detail == "mutated" {
		t.Error("entry evidence aliases the input")
	}
}

func TestAssemble_Warnings(t *testing.T) {
	incomplete := finding("slow", "x.go", 0, impact.ChangeRemoved, impact.SeverityRisky)
	incomplete.Evidence = append(incomplete.Evidence, impact.Evidence{Kind: impact.EvidenceTag, Detail: impact.TagEvidenceIncomplete})

	r := Assemble([]impact.Finding{incomplete}, Options{Warnings: []Warning{
		{Text: "unreadable file skipped: b.go"},
		{Text: "binary file skipped: a.png"},
		{Text: "binary file skipped: a.png"},
		{Severity: "info", Text: "3 files over the size limit"},
		{Severity: "error", Text: "manifest unreadable"},
	}})

	var texts []string
	for _, w := range r.Warnings {
		texts = append(texts, w.Text)
	}
	want := []string{
		"manifest unreadable",
		"binary file skipped: a.png",
		"unreadable file skipped: b.go",
		"usage scan did not finish for 1 candidates; their evidence is incomplete",
		"3 files over the size limit",
	}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("Warnings = %v\nwant %v", texts, want)
	}
	if r.Warnings[3].Code != "SCAN_TIMEOUT" {
		t.Errorf("incomplete warning code = %q", r.Warnings[3].Code)
	}
}

func TestReport_Fails(t *testing.T) {
	breaking := Assemble([]impact.Finding{finding("a", "x.go", 0, impact.ChangeRemoved, impact.SeverityBreaking)}, Options{})
	risky := Assemble([]impact.Finding{finding("a", "x.go", 0, impact.ChangeRemoved, impact.SeverityRisky)}, Options{})
	safe := Assemble([]impact.Finding{finding("a", "x.go", 0, impact.ChangeAdded, impact.SeveritySafe)}, Options{})

	tests := []struct {
		name   string
		report *Report
		failOn string
		want   bool
	}{
		{"breaking on breaking", breaking, "breaking", true},
		{"breaking on risky", risky, "breaking", false},
		{"risky on risky", risky, "risky", true},
		{"risky on breaking", breaking, "risky", true},
		{"risky on safe", safe, "risky", false},
		{"never", breaking, "never", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Fails(tt.failOn); got != tt.want {
				t.Errorf("Fails(%q) = %v, want %v", tt.failOn, got, tt.want)
			}
		})
	}

	if breaking.MaxSeverity() != impact.SeverityBreaking || risky.MaxSeverity() != impact.SeverityRisky || safe.MaxSeverity() != impact.SeveritySafe {
		t.Error("MaxSeverity mismatch")
	}
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		breaking, risky int
		want            string
	}{
		{0, 0, "No breaking changes detected"},
		{1, 0, "1 breaking, 0 risky"},
		{0, 3, "0 breaking, 3 risky"},
		{2, 5, "2 breaking, 5 risky"},
	}
	for _, tt := range tests {
		if got := Verdict(tt.breaking, tt.risky); got != tt.want {
			t.Errorf("Verdict(%d, %d) = %q, want %q", tt.breaking, tt.risky, got, tt.want)
		}
	}
}
