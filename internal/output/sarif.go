package output

import (
	"encoding/json"
	"sort"

	"changeguard/internal/impact"
)

const (
	sarifVersion = "2.1.0"
	sarifSchema  = "https://json.schemastore.org/sarif-2.1.0.json"
	toolName     = "changeguard"
)

var ruleDescriptions = map[impact.ChangeKind]string{
	impact.ChangeRemoved:          "Declaration removed",
	impact.ChangeRenamed:          "Declaration renamed",
	impact.ChangeSignatureChanged: "Declaration signature changed",
	impact.ChangeTypeChanged:      "Declaration type changed",
	impact.ChangeBehaviorChanged:  "Behavior changed without a signature change",
	impact.ChangeAdded:            "New declaration",
}

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version,omitempty"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations"`
	Properties sarifProperties `json:"properties"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

type sarifProperties struct {
	Severity    impact.Severity   `json:"severity"`
	Visibility  impact.Visibility `json:"visibility"`
	Evidence    []string          `json:"evidence"`
	Remediation string            `json:"remediation"`
}

// RuleID returns the SARIF rule id for a change kind
func RuleID(kind impact.ChangeKind) string {
	return toolName + "/" + string(kind)
}

// EncodeSARIF renders Breaking (error) and Risky (warning) findings as a SARIF 2.1.0 log
func EncodeSARIF(r *Report, toolVersion string) ([]byte, error) {
	results := make([]sarifResult, 0, len(r.Breaking)+len(r.Risky))
	kinds := make(map[impact.ChangeKind]bool)

	add := func(entries []Entry, level string) {
		for _, e := range entries {
			kinds[e.Kind] = true
			loc := sarifLocation{PhysicalLocation: sarifPhysicalLocation{
				ArtifactLocation: sarifArtifactLocation{URI: e.File},
			}}
			if e.Line > 0 {
				loc.PhysicalLocation.Region = &sarifRegion{StartLine: e.Line}
			}
			evidence := make([]string, 0, len(e.Evidence))
			for _, ev := range e.Evidence {
				evidence = append(evidence, ev.String())
			}
			results = append(results, sarifResult{
				RuleID:    RuleID(e.Kind),
				Level:     level,
				Message:   sarifMessage{Text: e.Symbol + ": " + e.Impact},
				Locations: []sarifLocation{loc},
				Properties: sarifProperties{
					Severity:    e.Severity,
					Visibility:  e.Visibility,
					Evidence:    evidence,
					Remediation: e.Remediation,
				},
			})
		}
	}
	add(r.Breaking, "error")
	add(r.Risky, "warning")

	rules := make([]sarifRule, 0, len(kinds))
	for kind := range kinds {
		rules = append(rules, sarifRule{
			ID:               RuleID(kind),
			ShortDescription: sarifMessage{Text: ruleDescriptions[kind]},
		})
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	log := sarifLog{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: toolName, Version: toolVersion, Rules: rules}},
			Results: results,
		}},
	}
	return json.MarshalIndent(log, "", "  ")
}
