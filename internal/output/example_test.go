package output_test

import (
	"fmt"

	"changeguard/internal/impact"
	"changeguard/internal/output"
)

func ExampleAssemble() {
	findings := []impact.Finding{
		{
			Candidate: impact.Candidate{Name: "formatInternal", File: "util.ts", Kind: impact.ChangeRemoved, Order: 1},
			Severity:  impact.SeveritySafe,
		},
		{
			Candidate: impact.Candidate{Name: "getUser", File: "api.ts", Kind: impact.ChangeRemoved, Order: 0},
			Severity:  impact.SeverityBreaking,
		},
	}

	report := output.Assemble(findings, output.Options{})
	fmt.Println(report.Verdict)
	fmt.Println(report.Breaking[0].Symbol)
	fmt.Println(report.SafeSummary.Symbols)
	// Output:
	// 1 breaking, 0 risky
	// getUser
	// [formatInternal]
}

func ExampleVerdict() {
	fmt.Println(output.Verdict(0, 0))
	fmt.Println(output.Verdict(2, 1))
	// Output:
	// No breaking changes detected
	// 2 breaking, 1 risky
}
