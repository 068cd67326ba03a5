// Package output assembles findings into a report and renders it.
//
// # Ordering Contract
//
// Findings are grouped Breaking, then Risky, then Safe. Inside a group they
// keep the order their candidates appeared in the diff. Warnings sort by
// severity (error, warning, info), then text.
//
// By default the Safe group is collapsed into a SafeSummary (count, kinds and
// symbol names); Options.IncludeSafe renders it in full.
//
// # JSON Encoding Rules
//
// Encode produces byte-identical output for identical reports:
//
//  1. Object keys are sorted alphabetically
//  2. Floats are rounded to at most 6 decimal places
//  3. Nil and empty fields are omitted
//
// The report carries no timestamps or run ids, so two runs over the same diff
// and codebase encode to the same bytes.
//
// # Formats
//
// WriteHuman renders the terminal view and EncodeSARIF a SARIF 2.1.0 log with
// one result per Breaking (error) or Risky (warning) finding.
package output
