package output

import (
	"fmt"
	"io"
	"strings"
)

// WriteHuman renders the report for a terminal
func WriteHuman(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Verdict: %s\n", r.Verdict)
	if r.Profile != nil {
		fmt.Fprintf(&b, "Project: %s", r.Profile.Posture)
		if r.Profile.Language != "" {
			fmt.Fprintf(&b, " (%s)", r.Profile.Language)
		}
		b.WriteString("\n")
	}

	writeGroup(&b, "BREAKING", r.Breaking)
	writeGroup(&b, "RISKY", r.Risky)
	switch {
	case len(r.Safe) > 0:
		writeGroup(&b, "SAFE", r.Safe)
	case r.SafeSummary != nil:
		fmt.Fprintf(&b, "\nSAFE (%d): %s\n", r.SafeSummary.Count, strings.Join(r.SafeSummary.Symbols, ", "))
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, warn := range r.Warnings {
			fmt.Fprintf(&b, "  [%s] %s\n", warn.Severity, warn.Text)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeGroup(b *strings.Builder, title string, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d)\n", title, len(entries))
	for _, e := range entries {
		name := e.Symbol
		if e.NewName != "" {
			name += " -> " + e.NewName
		}
		location := e.File
		if e.Line > 0 {
			location = fmt.Sprintf("%s:%d", e.File, e.Line)
		}
		fmt.Fprintf(b, "  %s (%s %s) %s\n", name, e.SymbolKind, e.Kind, location)
		fmt.Fprintf(b, "    visibility: %s\n", e.Visibility)
		for _, ev := range e.Evidence {
			fmt.Fprintf(b, "    - %s\n", ev)
		}
		fmt.Fprintf(b, "    impact: %s\n", e.Impact)
		fmt.Fprintf(b, "    remediation: %s\n", e.Remediation)
	}
}
