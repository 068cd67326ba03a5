package impact

import (
	"fmt"
	"strings"
)

// LineKind marks a single diff line
type LineKind string

const (
	LineAdded   LineKind = "added"
	LineRemoved LineKind = "removed"
	LineContext LineKind = "context"
)

// DiffLine is one line of a hunk body with its position on both sides.
// OldLine is 0 for added lines; NewLine is 0 for removed lines.
type DiffLine struct {
	Kind    LineKind `json:"kind"`
	Text    string   `json:"text"`
	OldLine int      `json:"oldLine,omitempty"`
	NewLine int      `json:"newLine,omitempty"`
}

// LineRange is the header of one @@ block
type LineRange struct {
	OldStart int    `json:"oldStart"`
	OldLines int    `json:"oldLines"`
	NewStart int    `json:"newStart"`
	NewLines int    `json:"newLines"`
	Section  string `json:"section,omitempty"` // Heading after the closing @@
	FirstIdx int    `json:"firstIdx"`          // Index into Hunk.Lines where this block starts
}

// Hunk holds every change for one file. Multiple @@ blocks are concatenated in order.
type Hunk struct {
	Path    string      `json:"path"`
	OldPath string      `json:"oldPath,omitempty"`
	IsNew   bool        `json:"isNew,omitempty"`
	Deleted bool        `json:"deleted,omitempty"`
	Renamed bool        `json:"renamed,omitempty"`
	Lines   []DiffLine  `json:"lines"`
	Ranges  []LineRange `json:"ranges"`
}

// AddedLines returns the new-side line numbers of all added lines
func (h *Hunk) AddedLines() []int {
	out := make([]int, 0)
	for _, l := range h.Lines {
		if l.Kind == LineAdded {
			out = append(out, l.NewLine)
		}
	}
	return out
}

// SectionAt returns the @@ section heading of the block containing line index idx
func (h *Hunk) SectionAt(idx int) string {
	section := ""
	for _, r := range h.Ranges {
		if r.FirstIdx > idx {
			break
		}
		section = r.Section
	}
	return section
}

// ParsedDiff is the output of the diff parser
type ParsedDiff struct {
	Hunks    []Hunk   `json:"hunks"`
	Warnings []string `json:"warnings,omitempty"`
}

// ChangeKind is the structural classification of a changed declaration
type ChangeKind string

const (
	ChangeRemoved          ChangeKind = "removed"
	ChangeRenamed          ChangeKind = "renamed"
	ChangeSignatureChanged ChangeKind = "signature_changed"
	ChangeTypeChanged      ChangeKind = "type_changed"
	ChangeBehaviorChanged  ChangeKind = "behavior_changed"
	ChangeAdded            ChangeKind = "added"
)

// IsStructural reports whether the change alters a declaration's shape
func (k ChangeKind) IsStructural() bool {
	switch k {
	case ChangeRemoved, ChangeRenamed, ChangeSignatureChanged, ChangeTypeChanged:
		return true
	}
	return false
}

// SymbolKind describes what sort of declaration a candidate is
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindType      SymbolKind = "type"
	KindInterface SymbolKind = "interface"
	KindClass     SymbolKind = "class"
	KindField     SymbolKind = "field"
	KindConstant  SymbolKind = "constant"
	KindVariable  SymbolKind = "variable"
	KindRoute     SymbolKind = "route"
	KindConfigKey SymbolKind = "config-key"
	KindEnvVar    SymbolKind = "env-var"
)

// IsContainer reports whether declarations of this kind can hold fields
func (k SymbolKind) IsContainer() bool {
	return k == KindType || k == KindInterface || k == KindClass
}

// CandidateKey is the identity of a candidate: qualified name + declaring file
type CandidateKey struct {
	Name string `json:"name"`
	File string `json:"file"`
}

func (k CandidateKey) String() string {
	return k.File + "#" + k.Name
}

// Candidate is a changed declaration eligible for classification
type Candidate struct {
	Name          string     `json:"name"`                    // Search token (bare identifier, route path, key)
	Container     string     `json:"container,omitempty"`     // Enclosing type for fields/methods
	NewName       string     `json:"newName,omitempty"`       // Set for renames
	File          string     `json:"file"`                    // Declaring file (new path when renamed)
	Kind          ChangeKind `json:"kind"`                    // Structural change kind
	SymbolKind    SymbolKind `json:"symbolKind"`              // Declaration kind
	OldSignature  string     `json:"oldSignature,omitempty"`  // Declaration line before
	NewSignature  string     `json:"newSignature,omitempty"`  // Declaration line after
	Markers       []string   `json:"markers,omitempty"`       // Access markers seen on the declaration
	LowConfidence bool       `json:"lowConfidence,omitempty"` // Rename pairing was ambiguous
	Collides      bool       `json:"collides,omitempty"`      // Added name already declared publicly
	CollidesWith  string     `json:"collidesWith,omitempty"`  // file:line of the existing declaration
	HunkIndex     int        `json:"hunkIndex"`               // Index of the originating hunk
	Line          int        `json:"line,omitempty"`          // Declaration line (new side if present)
	Order         int        `json:"order"`                   // Position in diff order
}

// QualifiedName joins container and name
func (c *Candidate) QualifiedName() string {
	if c.Container != "" {
		return c.Container + "." + c.Name
	}
	return c.Name
}

// Key returns the candidate identity
func (c *Candidate) Key() CandidateKey {
	return CandidateKey{Name: c.QualifiedName(), File: c.File}
}

// Signature returns the most recent known declaration text
func (c *Candidate) Signature() string {
	if c.NewSignature != "" {
		return c.NewSignature
	}
	return c.OldSignature
}

// Visibility is the reachability of a symbol from outside its module
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityInternal  Visibility = "internal"
	VisibilityAmbiguous Visibility = "ambiguous"
)

// EffectivelyPublic is true for Public and Ambiguous; ambiguity scores as public.
func (v Visibility) EffectivelyPublic() bool {
	return v == VisibilityPublic || v == VisibilityAmbiguous
}

// VisibilityVerdict is the resolver's answer for one candidate
type VisibilityVerdict struct {
	Key        CandidateKey `json:"key"`
	Visibility Visibility   `json:"visibility"`
	Evidence   []Evidence   `json:"evidence"`
}

// UsageRecord is one located reference to a candidate's name
type UsageRecord struct {
	Key       CandidateKey `json:"-"`
	File      string       `json:"file"`
	Line      int          `json:"line"`
	IsTest    bool         `json:"isTest"`
	InComment bool         `json:"inComment,omitempty"`
}

// UsageResult is everything the indexer learned about one candidate
type UsageResult struct {
	Records      []UsageRecord `json:"records"`
	FilesScanned int           `json:"filesScanned"`
	FilesSkipped int           `json:"filesSkipped"`
	FilesTotal   int           `json:"filesTotal"`
	Incomplete   bool          `json:"incomplete,omitempty"`
	Scanned      bool          `json:"scanned"` // False when the candidate did not need a scan
}

// NonTestCount returns the number of usages outside test paths
func (u *UsageResult) NonTestCount() int {
	n := 0
	for _, r := range u.Records {
		if !r.IsTest {
			n++
		}
	}
	return n
}

// TestCount returns the number of usages in test paths
func (u *UsageResult) TestCount() int {
	return len(u.Records) - u.NonTestCount()
}

// CommentCount returns usages that sit on comment-looking lines
func (u *UsageResult) CommentCount() int {
	n := 0
	for _, r := range u.Records {
		if r.InComment {
			n++
		}
	}
	return n
}

// Posture is the project's distribution model
type Posture string

const (
	PosturePublishedLibrary Posture = "published-library"
	PostureInternalService  Posture = "internal-service"
	PostureStandaloneApp    Posture = "standalone-app"
	PostureMonorepo         Posture = "monorepo"
)

// ProjectProfile is computed once per run and read-only afterwards
type ProjectProfile struct {
	Posture  Posture  `json:"posture"`
	Language string   `json:"language,omitempty"`
	Evidence []string `json:"evidence"`
}

// Severity is the verdict for a finding
type Severity string

const (
	SeveritySafe     Severity = "safe"
	SeverityRisky    Severity = "risky"
	SeverityBreaking Severity = "breaking"
)

// Rank orders severities; higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityBreaking:
		return 2
	case SeverityRisky:
		return 1
	case SeveritySafe:
		return 0
	default:
		return -1
	}
}

// MaxSeverity returns the worse of two severities
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// EvidenceKind categorizes an evidence entry
type EvidenceKind string

const (
	EvidenceUsage        EvidenceKind = "usage"
	EvidenceTestUsage    EvidenceKind = "test-usage"
	EvidenceVisibility   EvidenceKind = "visibility"
	EvidencePosture      EvidenceKind = "posture"
	EvidenceChange       EvidenceKind = "change"
	EvidenceNote         EvidenceKind = "note"
	EvidenceTag          EvidenceKind = "tag"
	EvidenceSkippedFiles EvidenceKind = "skipped-files"
	EvidenceTestSignal   EvidenceKind = "test-signal"
)

// Evidence is a flat (kind, detail) pair
type Evidence struct {
	Kind   EvidenceKind `json:"kind"`
	Detail string       `json:"detail"`
}

func (e Evidence) String() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Tags emitted as EvidenceTag details
const (
	TagEvidenceIncomplete   = "evidence-incomplete"
	TagRenamedLowConfidence = "renamed-low-confidence"
	TagExternalConsumers    = "external consumers possible"
)

// TestSignal is the optional outcome of an externally executed test suite
type TestSignal struct {
	Ran      bool `json:"ran"`
	Passed   bool `json:"passed"`
	TimedOut bool `json:"timedOut"`
}

// Describe renders the signal for evidence
func (t *TestSignal) Describe() string {
	switch {
	case !t.Ran:
		return "test suite not run"
	case t.TimedOut:
		return "test suite timed out"
	case t.Passed:
		return "test suite passed"
	default:
		return "test suite failed"
	}
}

// Finding is the verdict for exactly one candidate
type Finding struct {
	Candidate   Candidate     `json:"candidate"`
	Severity    Severity      `json:"severity"`
	Visibility  Visibility    `json:"visibility"`
	Evidence    []Evidence    `json:"evidence"`
	Usages      []UsageRecord `json:"usages,omitempty"`
	Impact      string        `json:"impact"`
	Remediation string        `json:"remediation"`
}

// HasTag reports whether the finding carries the given tag
func (f *Finding) HasTag(tag string) bool {
	for _, e := range f.Evidence {
		if e.Kind == EvidenceTag && e.Detail == tag {
			return true
		}
	}
	return false
}

// Notes returns the details of all note evidence
func (f *Finding) Notes() []string {
	var notes []string
	for _, e := range f.Evidence {
		if e.Kind == EvidenceNote {
			notes = append(notes, e.Detail)
		}
	}
	return notes
}

// HasNote reports whether any note contains the substring
func (f *Finding) HasNote(substr string) bool {
	for _, n := range f.Notes() {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}
