package breaking

import (
	"log/slog"
	"path"
	"sort"
	"strings"

	"changeguard/internal/impact"
	"changeguard/internal/slogutil"
	"changeguard/internal/symbols"
)

// Extractor turns parsed hunks into changed-symbol candidates.
//
// Each hunk is walked twice in lockstep: once as the old file (context and
// removed lines) and once as the new file (context and added lines). Both
// walks track the enclosing containers so that fields and methods are
// recognized, and the enclosing declaration so that body edits can be
// attributed. Declarations seen on changed lines are then paired up into
// signature changes, renames, removals and additions.
type Extractor struct {
	opts   ExtractOptions
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger discards output.
func NewExtractor(opts ExtractOptions, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if opts.RenameOverlapThreshold <= 0 || opts.RenameOverlapThreshold > 1 {
		opts.RenameOverlapThreshold = DefaultExtractOptions().RenameOverlapThreshold
	}
	return &Extractor{opts: opts, logger: logger}
}

// occurrence is a declaration seen on a changed line
type occurrence struct {
	decl  symbols.Decl
	added bool
	block int // index of the run of consecutive changed lines
	pos   int // index into Hunk.Lines
	line  int
	used  bool
}

// enclosing is the declaration whose body the walk is currently inside
type enclosing struct {
	decl    symbols.Decl
	indent  int
	line    int
	changed bool // the declaration line itself was removed or added
}

type bodyEdit struct {
	enc enclosing
	pos int
}

type positioned struct {
	pos int
	c   impact.Candidate
}

// side is the walk state for one version of the file
type side struct {
	file  string
	lang  symbols.Language
	stack []symbols.Scope
	enc   *enclosing
}

func (s *side) reset() {
	s.stack = s.stack[:0]
	s.enc = nil
}

func (s *side) scope() symbols.Scope {
	if len(s.stack) == 0 {
		return symbols.Scope{}
	}
	return s.stack[len(s.stack)-1]
}

// observe advances the side over one line and returns the declarations on it
func (s *side) observe(text string, lineNo int, changed bool) []symbols.Decl {
	for len(s.stack) > 0 && s.scope().Closes(text, s.lang) {
		s.stack = s.stack[:len(s.stack)-1]
	}
	if s.enc != nil && closesBody(text, s.lang, s.enc.indent) {
		s.enc = nil
	}

	var out []symbols.Decl
	for _, d := range symbols.MatchInScope(text, s.file, s.scope()) {
		if d.OpensScope {
			s.stack = append(s.stack, symbols.ScopeFor(d, text))
		}
		if d.ScopeOnly {
			continue
		}
		if enclosesBody(d.Kind) {
			s.enc = &enclosing{decl: d, indent: symbols.IndentWidth(text), line: lineNo, changed: changed}
		}
		out = append(out, d)
	}
	return out
}

// closesBody reports whether line ends a body opened at the given indent
func closesBody(line string, lang symbols.Language, indent int) bool {
	t := strings.TrimSpace(line)
	if t == "" || symbols.IsCommentLine(line) {
		return false
	}
	w := symbols.IndentWidth(line)
	if lang.IndentScoped() {
		return w <= indent
	}
	return w <= indent && strings.HasPrefix(t, "}")
}

// isBodyLine reports whether a changed line carries code worth attributing
func isBodyLine(line string) bool {
	t := strings.TrimSpace(line)
	if t == "" || symbols.IsCommentLine(line) {
		return false
	}
	if strings.Trim(t, "{}()[];, ") == "" {
		return false
	}
	return t != "end"
}

func hasStructural(decls []symbols.Decl) bool {
	for _, d := range decls {
		if d.Kind != impact.KindEnvVar && d.Kind != impact.KindRoute {
			return true
		}
	}
	return false
}

// Extract returns the candidates found in the diff, merged by identity and
// numbered in diff order. It never fails: unrecognized lines yield nothing.
func (e *Extractor) Extract(pd *impact.ParsedDiff) []impact.Candidate {
	if pd == nil {
		return nil
	}
	var all []impact.Candidate
	for i := range pd.Hunks {
		for _, p := range e.extractHunk(i, &pd.Hunks[i]) {
			all = append(all, p.c)
		}
	}
	all = reconcileMoves(all)
	merged := mergeCandidates(all)

	e.logger.Debug("Extracted candidates",
		"hunks", len(pd.Hunks),
		"raw", len(all),
		"candidates", len(merged),
	)
	return merged
}

func (e *Extractor) extractHunk(hunkIdx int, h *impact.Hunk) []positioned {
	lang := symbols.LanguageFromPath(h.Path)
	if lang == symbols.LangUnknown || len(h.Lines) == 0 {
		return nil
	}

	oldSide := &side{file: h.Path, lang: lang}
	newSide := &side{file: h.Path, lang: lang}
	if h.OldPath != "" {
		oldSide.file = h.OldPath
	}

	var occs []*occurrence
	var bodies []bodyEdit
	block, inBlock, nextRange := -1, false, 0

	for i, dl := range h.Lines {
		for nextRange < len(h.Ranges) && h.Ranges[nextRange].FirstIdx <= i {
			oldSide.reset()
			newSide.reset()
			if sec := h.Ranges[nextRange].Section; sec != "" {
				oldSide.observe(sec, 0, false)
				newSide.observe(sec, 0, false)
			}
			inBlock = false
			nextRange++
		}

		if dl.Kind == impact.LineContext {
			inBlock = false
			// Unchanged declarations are reported at their new-file line on
			// both sides so body edits point into the tree being scanned.
			oldSide.observe(dl.Text, dl.NewLine, false)
			newSide.observe(dl.Text, dl.NewLine, false)
			continue
		}

		if !inBlock {
			block++
			inBlock = true
		}
		added := dl.Kind == impact.LineAdded
		s, lineNo := oldSide, dl.OldLine
		if added {
			s, lineNo = newSide, dl.NewLine
		}

		decls := s.observe(dl.Text, lineNo, true)
		for _, d := range decls {
			occs = append(occs, &occurrence{decl: d, added: added, block: block, pos: i, line: lineNo})
		}
		if !hasStructural(decls) && isBodyLine(dl.Text) && s.enc != nil && !s.enc.changed {
			bodies = append(bodies, bodyEdit{enc: *s.enc, pos: i})
		}
	}

	var out []positioned
	emit := func(pos int, c impact.Candidate) {
		out = append(out, positioned{pos: pos, c: c})
	}

	// Same identity on both sides.
	for _, r := range occs {
		if r.added || r.used {
			continue
		}
		a := findPartner(occs, r)
		if a == nil {
			continue
		}
		r.used, a.used = true, true
		kind, changed := compareDecls(r.decl, a.decl)
		if !changed {
			continue
		}
		c := newCandidate(kind, r.decl, h, hunkIdx, a.line)
		c.OldSignature, c.NewSignature = r.decl.Signature, a.decl.Signature
		emit(min(r.pos, a.pos), c)
	}

	// Renames: unpaired removals and additions at the same position of a block.
	for _, g := range renameGroups(occs) {
		for i := 0; i < len(g.removed) && i < len(g.added); i++ {
			r, a := g.removed[i], g.added[i]
			conf := classifyRename(r.decl.Name, a.decl.Name, r.decl.Params, a.decl.Params,
				kindFamily(r.decl.Kind) == "callable", e.opts.RenameOverlapThreshold)
			if conf == notRename {
				continue
			}
			r.used, a.used = true, true
			c := newCandidate(impact.ChangeRenamed, r.decl, h, hunkIdx, a.line)
			c.NewName = a.decl.Name
			c.OldSignature, c.NewSignature = r.decl.Signature, a.decl.Signature
			c.LowConfidence = conf == renameLow
			emit(min(r.pos, a.pos), c)
		}
	}

	for _, o := range occs {
		if o.used {
			continue
		}
		if o.added {
			c := newCandidate(impact.ChangeAdded, o.decl, h, hunkIdx, o.line)
			c.NewSignature = o.decl.Signature
			emit(o.pos, c)
		} else {
			c := newCandidate(impact.ChangeRemoved, o.decl, h, hunkIdx, o.line)
			c.OldSignature = o.decl.Signature
			emit(o.pos, c)
		}
	}

	for _, b := range bodies {
		c := newCandidate(impact.ChangeBehaviorChanged, b.enc.decl, h, hunkIdx, b.enc.line)
		c.OldSignature = b.enc.decl.Signature
		c.NewSignature = b.enc.decl.Signature
		emit(b.pos, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })
	return out
}

func newCandidate(kind impact.ChangeKind, d symbols.Decl, h *impact.Hunk, hunkIdx, line int) impact.Candidate {
	return impact.Candidate{
		Name:       d.Name,
		Container:  d.Container,
		File:       h.Path,
		Kind:       kind,
		SymbolKind: d.Kind,
		Markers:    append([]string(nil), d.Markers...),
		HunkIndex:  hunkIdx,
		Line:       line,
	}
}

func pairKey(d symbols.Decl) string {
	return kindFamily(d.Kind) + "|" + d.Container + "|" + d.Name
}

// findPartner returns the unused added occurrence with the same identity,
// preferring one from the same block.
func findPartner(occs []*occurrence, r *occurrence) *occurrence {
	key := pairKey(r.decl)
	var fallback *occurrence
	for _, a := range occs {
		if !a.added || a.used || pairKey(a.decl) != key {
			continue
		}
		if a.block == r.block {
			return a
		}
		if fallback == nil {
			fallback = a
		}
	}
	return fallback
}

// compareDecls classifies the difference between two versions of one declaration
func compareDecls(old, cur symbols.Decl) (impact.ChangeKind, bool) {
	if old.Signature == cur.Signature {
		return "", false
	}
	if kindFamily(old.Kind) == "value" {
		if valueShape(old) == valueShape(cur) {
			return impact.ChangeBehaviorChanged, true
		}
		return impact.ChangeTypeChanged, true
	}
	return changeKindFor(old.Kind), true
}

// valueShape is the declaration text without its assigned value
func valueShape(d symbols.Decl) string {
	if d.Value != "" && strings.HasSuffix(d.Signature, d.Value) {
		return strings.TrimSpace(strings.TrimSuffix(d.Signature, d.Value))
	}
	return d.Signature
}

type renameGroup struct {
	removed []*occurrence
	added   []*occurrence
}

// renameGroups buckets unpaired occurrences by block, kind family and container,
// in order of first appearance.
func renameGroups(occs []*occurrence) []*renameGroup {
	type key struct {
		block     int
		family    string
		container string
	}
	index := make(map[key]*renameGroup)
	var groups []*renameGroup
	for _, o := range occs {
		if o.used {
			continue
		}
		k := key{block: o.block, family: kindFamily(o.decl.Kind), container: o.decl.Container}
		g, ok := index[k]
		if !ok {
			g = &renameGroup{}
			index[k] = g
			groups = append(groups, g)
		}
		if o.added {
			g.added = append(g.added, o)
		} else {
			g.removed = append(g.removed, o)
		}
	}
	return groups
}

// reconcileMoves pairs a removal in one file with an addition of the same
// declaration in a sibling file. Identical declarations cancel out; a changed
// one is reported against the destination.
func reconcileMoves(cands []impact.Candidate) []impact.Candidate {
	drop := make([]bool, len(cands))
	for i := range cands {
		r := cands[i]
		if drop[i] || r.Kind != impact.ChangeRemoved {
			continue
		}
		for j := range cands {
			a := cands[j]
			if drop[j] || a.Kind != impact.ChangeAdded || a.File == r.File {
				continue
			}
			if path.Dir(a.File) != path.Dir(r.File) || a.Name != r.Name || a.Container != r.Container ||
				kindFamily(a.SymbolKind) != kindFamily(r.SymbolKind) {
				continue
			}
			drop[j] = true
			if r.OldSignature == a.NewSignature {
				drop[i] = true
			} else {
				moved := a
				moved.Kind = changeKindFor(r.SymbolKind)
				moved.OldSignature = r.OldSignature
				moved.Markers = r.Markers
				cands[i] = moved
			}
			break
		}
	}

	out := make([]impact.Candidate, 0, len(cands))
	for i, c := range cands {
		if !drop[i] {
			out = append(out, c)
		}
	}
	return out
}

// mergeCandidates keeps one candidate per identity. A structural change wins
// over a behavioral one; otherwise the first occurrence wins.
func mergeCandidates(cands []impact.Candidate) []impact.Candidate {
	index := make(map[impact.CandidateKey]int)
	out := make([]impact.Candidate, 0, len(cands))
	for _, c := range cands {
		k := c.Key()
		if i, ok := index[k]; ok {
			if !out[i].Kind.IsStructural() && c.Kind.IsStructural() {
				out[i] = c
			}
			continue
		}
		index[k] = len(out)
		out = append(out, c)
	}
	for i := range out {
		out[i].Order = i
	}
	return out
}
