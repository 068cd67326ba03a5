package output

import (
	"sort"

	"changeguard/internal/impact"
)

// warningSeverity orders warnings; lower sorts first
var warningSeverity = map[string]int{
	"error":   1,
	"warning": 2,
	"info":    3,
}

func warningPriority(severity string) int {
	if p, ok := warningSeverity[severity]; ok {
		return p
	}
	return warningSeverity["info"]
}

// SortWarnings sorts warnings by severity, then text
func SortWarnings(warnings []Warning) {
	sort.SliceStable(warnings, func(i, j int) bool {
		pi, pj := warningPriority(warnings[i].Severity), warningPriority(warnings[j].Severity)
		if pi != pj {
			return pi < pj
		}
		return warnings[i].Text < warnings[j].Text
	})
}

// SortFindings restores diff order: candidate order, then file, then name
func SortFindings(findings []impact.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := &findings[i].Candidate, &findings[j].Candidate
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.QualifiedName() < b.QualifiedName()
	})
}
