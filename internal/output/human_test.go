package output

import (
	"bytes"
	"strings"
	"testing"

	"changeguard/internal/impact"
)

func TestWriteHuman(t *testing.T) {
	renamed := finding("fetchData", "api/data.ts", 1, impact.ChangeRenamed, impact.SeverityRisky)
	renamed.Candidate.NewName = "fetchDataAsync"

	r := Assemble([]impact.Finding{
		finding("getUser", "api/user.ts", 0, impact.ChangeRemoved, impact.SeverityBreaking),
		renamed,
		finding("formatInternal", "api/util.ts", 2, impact.ChangeRemoved, impact.SeveritySafe),
	}, Options{
		Profile:  &impact.ProjectProfile{Posture: impact.PosturePublishedLibrary, Language: "typescript"},
		Warnings: []Warning{{Text: "binary file skipped: logo.png"}},
	})

	var buf bytes.Buffer
	if err := WriteHuman(&buf, r); err != nil {
		t.Fatalf("WriteHuman() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Verdict: 1 breaking, 1 risky\n",
		"Project: published-library (typescript)\n",
		"BREAKING (1)\n  getUser (function removed) api/user.ts:1\n",
		"RISKY (1)\n  fetchData -> fetchDataAsync (function renamed) api/data.ts:2\n",
		"    - change: removed\n",
		"    remediation: getUser remediation\n",
		"SAFE (1): formatInternal\n",
		"  [warning] binary file skipped: logo.png\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "BREAKING") > strings.Index(out, "RISKY") {
		t.Error("Breaking must be rendered before Risky")
	}
}

func TestWriteHuman_NoFindings(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHuman(&buf, Assemble(nil, Options{})); err != nil {
		t.Fatalf("WriteHuman() error = %v", err)
	}
	if got := buf.String(); got != "Verdict: No breaking changes detected\n" {
		t.Errorf("WriteHuman() = %q", got)
	}
}
