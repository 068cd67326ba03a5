package impact

import (
	"fmt"
	"strings"
)

// ClassifyInput is everything the classifier looks at for one candidate
type ClassifyInput struct {
	Candidate  Candidate
	Verdict    VisibilityVerdict
	Usage      UsageResult
	Profile    ProjectProfile
	TestSignal *TestSignal // Optional; evidence only
}

// effectiveKind treats an added name that collides with an existing public
// declaration as a signature change of that declaration.
func (in *ClassifyInput) effectiveKind() ChangeKind {
	if in.Candidate.Kind == ChangeAdded && in.Candidate.Collides {
		return ChangeSignatureChanged
	}
	return in.Candidate.Kind
}

// severityRule is one row of the decision table
type severityRule struct {
	name     string
	severity Severity
	applies  func(in *ClassifyInput) bool
	note     func(in *ClassifyInput) string
	tag      string
}

var severityRules = []severityRule{
	{
		name:     "internal-structural",
		severity: SeveritySafe,
		applies: func(in *ClassifyInput) bool {
			return in.Verdict.Visibility == VisibilityInternal && in.effectiveKind().IsStructural()
		},
		note: func(in *ClassifyInput) string {
			return "symbol is not reachable from outside its module"
		},
	},
	{
		name:     "public-used",
		severity: SeverityBreaking,
		applies: func(in *ClassifyInput) bool {
			return in.Verdict.Visibility.EffectivelyPublic() && in.effectiveKind().IsStructural() &&
				in.Usage.NonTestCount() > 0
		},
		note: func(in *ClassifyInput) string {
			return fmt.Sprintf("%d usages outside test paths", in.Usage.NonTestCount())
		},
	},
	{
		name:     "public-test-only",
		severity: SeverityRisky,
		applies: func(in *ClassifyInput) bool {
			return in.Verdict.Visibility.EffectivelyPublic() && in.effectiveKind().IsStructural() &&
				in.Usage.NonTestCount() == 0 && in.Usage.TestCount() > 0
		},
		note: func(in *ClassifyInput) string {
			return fmt.Sprintf("only test usages found (%d)", in.Usage.TestCount())
		},
	},
	{
		name:     "public-unused",
		severity: SeverityRisky,
		applies: func(in *ClassifyInput) bool {
			return in.Verdict.Visibility.EffectivelyPublic() && in.effectiveKind().IsStructural() &&
				len(in.Usage.Records) == 0
		},
		note: func(in *ClassifyInput) string {
			return "no callers found in scanned codebase"
		},
	},
	{
		name:     "published-library",
		severity: SeverityRisky,
		applies: func(in *ClassifyInput) bool {
			return in.Profile.Posture == PosturePublishedLibrary &&
				in.Verdict.Visibility.EffectivelyPublic() && in.effectiveKind().IsStructural() &&
				in.Usage.NonTestCount() == 0
		},
		tag: TagExternalConsumers,
	},
	{
		name:     "added",
		severity: SeveritySafe,
		applies: func(in *ClassifyInput) bool {
			return in.effectiveKind() == ChangeAdded
		},
		note: func(in *ClassifyInput) string {
			return "new declaration; existing code cannot depend on it"
		},
	},
	{
		name:     "behavior-changed",
		severity: SeverityRisky,
		applies: func(in *ClassifyInput) bool {
			return in.effectiveKind() == ChangeBehaviorChanged
		},
		note: func(in *ClassifyInput) string {
			return "behavioral change cannot be confirmed safe from static evidence"
		},
	},
	{
		name:     "evidence-incomplete",
		severity: SeverityRisky,
		applies: func(in *ClassifyInput) bool {
			return in.Usage.Incomplete
		},
		tag: TagEvidenceIncomplete,
	},
}

// Classify applies every matching rule and keeps the highest severity.
// A candidate that no rule matches is Risky.
func Classify(in ClassifyInput) Finding {
	c := in.Candidate
	f := Finding{
		Candidate:  c,
		Visibility: in.Verdict.Visibility,
		Evidence:   make([]Evidence, 0),
	}
	if f.Visibility == "" {
		f.Visibility = VisibilityAmbiguous
		in.Verdict.Visibility = VisibilityAmbiguous
	}

	f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceChange, Detail: describeChange(&c)})
	if c.Collides {
		f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceNote, Detail: "collides with existing declaration at " + c.CollidesWith})
	}
	f.Evidence = append(f.Evidence, in.Verdict.Evidence...)
	if in.Profile.Posture != "" {
		f.Evidence = append(f.Evidence, Evidence{Kind: EvidencePosture, Detail: string(in.Profile.Posture)})
	}

	matched := false
	severity := SeveritySafe
	for i := range severityRules {
		rule := &severityRules[i]
		if !rule.applies(&in) {
			continue
		}
		severity = MaxSeverity(severity, rule.severity)
		matched = true
		if rule.note != nil {
			f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceNote, Detail: rule.note(&in)})
		}
		if rule.tag != "" {
			f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceTag, Detail: rule.tag})
		}
	}
	if !matched {
		severity = SeverityRisky
		f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceNote, Detail: "unclassified change kind"})
	}
	if c.LowConfidence {
		f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceTag, Detail: TagRenamedLowConfidence})
	}
	f.Severity = severity

	for _, r := range in.Usage.Records {
		kind := EvidenceUsage
		if r.IsTest {
			kind = EvidenceTestUsage
		}
		detail := fmt.Sprintf("%s:%d", r.File, r.Line)
		if r.InComment {
			detail += " (comment)"
		}
		f.Evidence = append(f.Evidence, Evidence{Kind: kind, Detail: detail})
	}
	if len(in.Usage.Records) > 0 {
		f.Usages = append([]UsageRecord(nil), in.Usage.Records...)
	}

	limits := DetermineLimits(&in.Usage)
	for _, note := range limits.Notes {
		kind := EvidenceNote
		if strings.HasSuffix(note, "files skipped") {
			kind = EvidenceSkippedFiles
		}
		f.Evidence = append(f.Evidence, Evidence{Kind: kind, Detail: note})
	}

	if in.TestSignal != nil {
		f.Evidence = append(f.Evidence, Evidence{Kind: EvidenceTestSignal, Detail: in.TestSignal.Describe()})
	}

	f.Impact = describeImpact(&c, in.effectiveKind(), severity, in.Usage.NonTestCount())
	f.Remediation = suggestRemediation(&c, in.effectiveKind(), severity, &f)
	return f
}

func describeChange(c *Candidate) string {
	name := c.QualifiedName()
	switch c.Kind {
	case ChangeRenamed:
		return fmt.Sprintf("%s %s renamed to %s", c.SymbolKind, name, c.NewName)
	case ChangeSignatureChanged, ChangeTypeChanged:
		if c.OldSignature != "" && c.NewSignature != "" {
			return fmt.Sprintf("%s %s: %q -> %q", c.SymbolKind, name, c.OldSignature, c.NewSignature)
		}
	}
	return fmt.Sprintf("%s %s %s", c.SymbolKind, name, strings.ReplaceAll(string(c.Kind), "_", " "))
}

func describeImpact(c *Candidate, kind ChangeKind, severity Severity, callers int) string {
	name := c.QualifiedName()
	switch kind {
	case ChangeAdded:
		return fmt.Sprintf("Adds %s; existing code is unaffected", name)
	case ChangeBehaviorChanged:
		return fmt.Sprintf("The behavior of %s changed; callers relying on the old behavior may break", name)
	}

	if severity == SeverityBreaking {
		switch kind {
		case ChangeRemoved:
			return fmt.Sprintf("Removing %s breaks %d references outside tests", name, callers)
		case ChangeRenamed:
			return fmt.Sprintf("Renaming %s to %s breaks %d references to the old name", name, c.NewName, callers)
		case ChangeSignatureChanged:
			if c.Collides {
				return fmt.Sprintf("New declaration of %s conflicts with an existing one used in %d places", name, callers)
			}
			return fmt.Sprintf("%d call sites of %s no longer match its signature", callers, name)
		case ChangeTypeChanged:
			return fmt.Sprintf("%d references depend on the previous shape of %s", callers, name)
		}
	}
	if severity == SeveritySafe {
		return fmt.Sprintf("%s is internal; the change stays inside its module", name)
	}
	return fmt.Sprintf("%s changed but no callers were confirmed; consumers outside the scanned code may still depend on it", name)
}

func suggestRemediation(c *Candidate, kind ChangeKind, severity Severity, f *Finding) string {
	if severity == SeveritySafe {
		return "No action needed"
	}
	if f.HasTag(TagEvidenceIncomplete) {
		return "Re-run with a longer scan timeout to complete the usage scan"
	}

	name := c.QualifiedName()
	var suggestion string
	switch kind {
	case ChangeRemoved:
		suggestion = fmt.Sprintf("Keep %s as a deprecated wrapper, or update every caller before removing it", name)
	case ChangeRenamed:
		suggestion = fmt.Sprintf("Keep %s as an alias of %s until callers migrate", name, c.NewName)
	case ChangeSignatureChanged:
		suggestion = fmt.Sprintf("Add a new variant instead of changing %s, or update all call sites", name)
	case ChangeTypeChanged:
		suggestion = fmt.Sprintf("Update code that depends on %s, or keep the previous shape available", name)
	case ChangeBehaviorChanged:
		suggestion = fmt.Sprintf("Cover the new behavior of %s with tests and document it for callers", name)
	default:
		suggestion = "Review the change manually"
	}
	if f.HasTag(TagExternalConsumers) {
		suggestion += "; treat this as a major version change for published consumers"
	}
	return suggestion
}
