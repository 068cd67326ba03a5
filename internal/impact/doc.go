// Package impact holds the data model shared by every analysis stage and the
// two stages that need no I/O of their own: visibility resolution and
// severity classification.
//
// A Candidate is one changed declaration taken from a diff. For each
// candidate the pipeline collects a VisibilityVerdict, a UsageResult and the
// run-wide ProjectProfile, then calls Classify to obtain exactly one Finding.
//
// Visibility Resolution:
//
// The Resolver combines several lexical signals, each recorded as evidence:
//
//  1. A published-interface manifest (plain list or OpenAPI document).
//     When it covers the candidate's category it decides alone.
//
//  2. Declaration markers captured by the extractor
//     - export, public, pub, Go capitalized names -> public
//     - private, protected, internal, pub(crate), Go lowercase names,
//     leading underscores, missing export modifiers -> internal
//
//  3. File signals
//     - Go internal/ path segments
//     - JS/TS export lists and CommonJS module.exports
//     - Python __all__
//     - entry-point files and sibling entry points that re-export the file
//
// Public and internal signals together yield Ambiguous, as does the absence
// of any signal. Ambiguous scores as public during classification.
//
// Severity Classification:
//
// Classify evaluates every rule of the decision table and keeps the highest
// severity:
//
//   - Internal + removed/renamed/signature/type change: Safe
//   - Public or Ambiguous with usages outside tests: Breaking
//   - Public or Ambiguous with test-only or no usages: Risky
//   - Published library, public, no usages: Risky, tagged "external consumers possible"
//   - Added without collision: Safe
//   - Behavior change: Risky
//   - Incomplete usage scan: at least Risky, tagged evidence-incomplete
//
// Candidates that match no rule are Risky.
package impact
