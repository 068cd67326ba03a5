package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	cgerrors "changeguard/internal/errors"
	"changeguard/internal/impact"
)

// MalformedDiffError reports diff text whose header or hunk framing cannot be parsed.
// Line is 1-based and 0 when the position is unknown.
type MalformedDiffError struct {
	Line   int
	Reason string
	coded  *cgerrors.AnalysisError
}

func newMalformed(line int, reason string, cause error) *MalformedDiffError {
	msg := reason
	if line > 0 {
		msg = fmt.Sprintf("line %d: %s", line, reason)
	}
	return &MalformedDiffError{
		Line:   line,
		Reason: reason,
		coded:  cgerrors.NewAnalysisError(cgerrors.MalformedDiff, msg, cause),
	}
}

func (e *MalformedDiffError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed diff at line %d: %s", e.Line, e.Reason)
	}
	return "malformed diff: " + e.Reason
}

// Unwrap exposes the coded error so callers can map it to an exit code
func (e *MalformedDiffError) Unwrap() error {
	return e.coded
}

// GitDiffParser parses unified git diffs into per-file hunks
type GitDiffParser struct{}

// NewGitDiffParser creates a new GitDiffParser
func NewGitDiffParser() *GitDiffParser {
	return &GitDiffParser{}
}

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// Parse parses a unified diff string into a ParsedDiff.
// Empty input yields no hunks. Binary files are skipped with a warning.
func (p *GitDiffParser) Parse(diffContent string) (*impact.ParsedDiff, error) {
	if strings.TrimSpace(diffContent) == "" {
		return &impact.ParsedDiff{Hunks: []impact.Hunk{}}, nil
	}
	if err := validateFraming(diffContent); err != nil {
		return nil, err
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(diffContent))
	if err != nil {
		return nil, newMalformed(0, "failed to parse diff", err)
	}

	result := &impact.ParsedDiff{
		Hunks: make([]impact.Hunk, 0, len(fileDiffs)),
	}
	for _, fd := range fileDiffs {
		h, binary := p.parseFileDiff(fd)
		if binary {
			result.Warnings = append(result.Warnings, "binary file skipped: "+effectivePath(h))
			continue
		}
		if h.Path == "" && h.OldPath == "" {
			continue
		}
		result.Hunks = append(result.Hunks, h)
	}
	return result, nil
}

// validateFraming checks headers and hunk line counts before go-diff sees the
// text, so that failures carry a line number.
func validateFraming(text string) error {
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	headerSeen := false
	oldLeft, newLeft := 0, 0
	inHunk := false
	for i, line := range lines {
		lineNo := i + 1
		if inHunk {
			switch {
			case strings.HasPrefix(line, `\`):
				continue
			case line == "" || line[0] == ' ':
				oldLeft--
				newLeft--
			case line[0] == '-':
				oldLeft--
			case line[0] == '+':
				newLeft--
			default:
				return newMalformed(lineNo, "hunk body shorter than its header declares", nil)
			}
			if oldLeft < 0 || newLeft < 0 {
				return newMalformed(lineNo, "hunk body longer than its header declares", nil)
			}
			if oldLeft == 0 && newLeft == 0 {
				inHunk = false
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "diff --git "), strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			headerSeen = true
		case strings.HasPrefix(line, "@@"):
			if !headerSeen {
				return newMalformed(lineNo, "hunk without a file header", nil)
			}
			m := hunkHeaderRe.FindStringSubmatch(line)
			if m == nil {
				return newMalformed(lineNo, fmt.Sprintf("invalid hunk header %q", line), nil)
			}
			oldLeft, newLeft = rangeCount(m[2]), rangeCount(m[4])
			inHunk = oldLeft > 0 || newLeft > 0
		case strings.HasPrefix(line, `\`):
		case line != "" && (line[0] == '+' || line[0] == '-' || line[0] == ' ') && headerSeen && lastWasHunk(lines, i):
			return newMalformed(lineNo, "hunk body longer than its header declares", nil)
		}
	}
	if inHunk {
		return newMalformed(len(lines), "unexpected end of diff inside a hunk", nil)
	}
	if !headerSeen {
		return newMalformed(1, "no file headers found", nil)
	}
	return nil
}

// lastWasHunk reports whether the nearest preceding structural line belongs to a hunk
func lastWasHunk(lines []string, i int) bool {
	for j := i - 1; j >= 0; j-- {
		l := lines[j]
		switch {
		case strings.HasPrefix(l, "@@"):
			return true
		case strings.HasPrefix(l, "diff --git "), strings.HasPrefix(l, "--- "), strings.HasPrefix(l, "+++ "),
			strings.HasPrefix(l, "index "), strings.HasPrefix(l, "Binary files "):
			return false
		}
	}
	return false
}

func rangeCount(s string) int {
	if s == "" {
		return 1
	}
	n, _ := strconv.Atoi(s)
	return n
}

// parseFileDiff converts a go-diff FileDiff into a Hunk
func (p *GitDiffParser) parseFileDiff(fd *godiff.FileDiff) (impact.Hunk, bool) {
	oldName, newName := fd.OrigName, fd.NewName
	binary := false
	var renameFrom, renameTo string
	for _, ext := range fd.Extended {
		switch {
		case strings.HasPrefix(ext, "diff --git ") && (oldName == "" || newName == ""):
			if a, b, ok := splitGitHeader(ext); ok {
				if oldName == "" {
					oldName = a
				}
				if newName == "" {
					newName = b
				}
			}
		case strings.HasPrefix(ext, "rename from "):
			renameFrom = strings.TrimPrefix(ext, "rename from ")
		case strings.HasPrefix(ext, "rename to "):
			renameTo = strings.TrimPrefix(ext, "rename to ")
		case strings.HasPrefix(ext, "new file mode"):
			oldName = "/dev/null"
		case strings.HasPrefix(ext, "deleted file mode"):
			newName = "/dev/null"
		case strings.HasPrefix(ext, "Binary files "), strings.HasPrefix(ext, "GIT binary patch"):
			binary = true
		}
	}

	h := impact.Hunk{
		OldPath: cleanPath(oldName),
		Path:    cleanPath(newName),
		Lines:   make([]impact.DiffLine, 0),
		Ranges:  make([]impact.LineRange, 0, len(fd.Hunks)),
	}
	if renameFrom != "" && renameTo != "" {
		h.OldPath, h.Path = renameFrom, renameTo
	}

	if oldName == "/dev/null" || oldName == "" {
		h.IsNew = true
		h.OldPath = ""
	}
	if newName == "/dev/null" || newName == "" {
		h.Deleted = true
		h.Path = h.OldPath
	}
	if h.OldPath != "" && h.Path != "" && h.OldPath != h.Path {
		h.Renamed = true
	}
	if !h.Renamed {
		h.OldPath = ""
	}
	if binary {
		return h, true
	}

	for _, hunk := range fd.Hunks {
		p.appendHunk(&h, hunk)
	}
	return h, false
}

// appendHunk walks one @@ block, numbering lines on both sides
func (p *GitDiffParser) appendHunk(h *impact.Hunk, hunk *godiff.Hunk) {
	h.Ranges = append(h.Ranges, impact.LineRange{
		OldStart: int(hunk.OrigStartLine),
		OldLines: int(hunk.OrigLines),
		NewStart: int(hunk.NewStartLine),
		NewLines: int(hunk.NewLines),
		Section:  strings.TrimRight(strings.TrimPrefix(hunk.Section, " "), " \t"),
		FirstIdx: len(h.Lines),
	})

	oldLine := int(hunk.OrigStartLine)
	newLine := int(hunk.NewStartLine)

	body := strings.TrimSuffix(string(hunk.Body), "\n")
	if body == "" {
		return
	}
	for _, line := range strings.Split(body, "\n") {
		if len(line) == 0 {
			// Editors strip the leading space from blank context lines
			h.Lines = append(h.Lines, impact.DiffLine{Kind: impact.LineContext, OldLine: oldLine, NewLine: newLine})
			oldLine++
			newLine++
			continue
		}

		switch line[0] {
		case '+':
			h.Lines = append(h.Lines, impact.DiffLine{Kind: impact.LineAdded, Text: line[1:], NewLine: newLine})
			newLine++
		case '-':
			h.Lines = append(h.Lines, impact.DiffLine{Kind: impact.LineRemoved, Text: line[1:], OldLine: oldLine})
			oldLine++
		case ' ':
			h.Lines = append(h.Lines, impact.DiffLine{Kind: impact.LineContext, Text: line[1:], OldLine: oldLine, NewLine: newLine})
			oldLine++
			newLine++
		case '\\':
			// "\ No newline at end of file" - ignore
		}
	}
}

// splitGitHeader extracts both paths from "diff --git a/x b/x"
func splitGitHeader(line string) (string, string, bool) {
	rest := strings.TrimPrefix(line, "diff --git ")
	if i := strings.Index(rest, " b/"); i > 0 {
		return rest[:i], rest[i+1:], true
	}
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// cleanPath removes the a/ or b/ prefix from git diff paths
func cleanPath(path string) string {
	if path == "" || path == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

func effectivePath(h impact.Hunk) string {
	if h.Path != "" {
		return h.Path
	}
	return h.OldPath
}

// ParseGitDiff is a convenience function to parse a git diff string
func ParseGitDiff(diffContent string) (*impact.ParsedDiff, error) {
	return NewGitDiffParser().Parse(diffContent)
}

// IsSourceFile checks if the file is a source code file (not generated, vendor, etc.)
func IsSourceFile(path string) bool {
	skipPrefixes := []string{
		"vendor/",
		"node_modules/",
		".git/",
	}
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(path, prefix) || strings.Contains(path, "/"+prefix) {
			return false
		}
	}

	skipSuffixes := []string{
		".sum",
		".lock",
		".min.js",
		".min.css",
		".map",
		".pb.go",
		"_generated.go",
		".gen.go",
		"-lock.json", // package-lock.json, etc.
		"-lock.yaml", // pnpm-lock.yaml
	}
	for _, suffix := range skipSuffixes {
		if strings.HasSuffix(path, suffix) {
			return false
		}
	}

	return true
}

// FilterSourceFiles returns only hunks for source files. Warnings are kept.
func FilterSourceFiles(pd *impact.ParsedDiff) *impact.ParsedDiff {
	filtered := &impact.ParsedDiff{
		Hunks:    make([]impact.Hunk, 0, len(pd.Hunks)),
		Warnings: pd.Warnings,
	}
	for _, h := range pd.Hunks {
		if IsSourceFile(effectivePath(h)) {
			filtered.Hunks = append(filtered.Hunks, h)
		}
	}
	return filtered
}

// AddedLines maps each file to the new-side line numbers the diff added
func AddedLines(pd *impact.ParsedDiff) map[string][]int {
	out := make(map[string][]int, len(pd.Hunks))
	for i := range pd.Hunks {
		h := &pd.Hunks[i]
		if h.Deleted {
			continue
		}
		if lines := h.AddedLines(); len(lines) > 0 {
			out[h.Path] = append(out[h.Path], lines...)
		}
	}
	return out
}
