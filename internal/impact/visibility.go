package impact

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"changeguard/internal/paths"
)

// PublishedSurface is an explicit declaration of a project's public interface.
// When it declares a category (symbols, routes or config keys) it overrides
// every heuristic signal for candidates of that category.
type PublishedSurface struct {
	Source     string
	Symbols    map[string]bool
	Routes     map[string]bool
	ConfigKeys map[string]bool
}

func newPublishedSurface(source string) *PublishedSurface {
	return &PublishedSurface{
		Source:     source,
		Symbols:    make(map[string]bool),
		Routes:     make(map[string]bool),
		ConfigKeys: make(map[string]bool),
	}
}

// Covers reports whether the surface declares the candidate's category
func (p *PublishedSurface) Covers(c *Candidate) bool {
	switch c.SymbolKind {
	case KindRoute:
		return len(p.Routes) > 0
	case KindConfigKey, KindEnvVar:
		return len(p.ConfigKeys) > 0
	default:
		return len(p.Symbols) > 0
	}
}

// Lists reports whether the candidate is part of the published surface
func (p *PublishedSurface) Lists(c *Candidate) bool {
	switch c.SymbolKind {
	case KindRoute:
		return p.Routes[NormalizeRoute(c.Name)]
	case KindConfigKey, KindEnvVar:
		return p.ConfigKeys[c.Name]
	default:
		return p.Symbols[c.Name] || p.Symbols[c.QualifiedName()]
	}
}

// NormalizeRoute replaces path parameters (":id", "{id}", "<id>") with "{}"
// so that framework and OpenAPI spellings compare equal.
func NormalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if i := strings.IndexByte(route, '?'); i >= 0 {
		route = route[:i]
	}
	segs := strings.Split(route, "/")
	for i, s := range segs {
		switch {
		case strings.HasPrefix(s, ":"),
			strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"),
			strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">"):
			segs[i] = "{}"
		}
	}
	out := strings.Join(segs, "/")
	if len(out) > 1 {
		out = strings.TrimSuffix(out, "/")
	}
	return out
}

// surfaceFile is the plain manifest form
type surfaceFile struct {
	Symbols    []string `yaml:"symbols"`
	Routes     []string `yaml:"routes"`
	ConfigKeys []string `yaml:"configKeys"`
}

// LoadPublishedSurface reads a published-interface manifest from disk
func LoadPublishedSurface(file string) (*PublishedSurface, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read published interface manifest: %w", err)
	}
	return ParsePublishedSurface(file, data)
}

// ParsePublishedSurface parses an OpenAPI/Swagger document or a plain
// {symbols, routes, configKeys} manifest in YAML or JSON.
func ParsePublishedSurface(source string, data []byte) (*PublishedSurface, error) {
	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", source, err)
	}
	if _, ok := probe["openapi"]; ok {
		return surfaceFromOpenAPI(source, data)
	}
	if _, ok := probe["swagger"]; ok {
		return surfaceFromSwagger(source, probe), nil
	}

	var sf surfaceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", source, err)
	}
	surface := newPublishedSurface(source)
	for _, s := range sf.Symbols {
		surface.Symbols[strings.TrimSpace(s)] = true
	}
	for _, r := range sf.Routes {
		surface.Routes[NormalizeRoute(routePath(r))] = true
	}
	for _, k := range sf.ConfigKeys {
		surface.ConfigKeys[strings.TrimSpace(k)] = true
	}
	return surface, nil
}

// routePath drops a leading HTTP method from "GET /users"
func routePath(r string) string {
	r = strings.TrimSpace(r)
	if i := strings.IndexByte(r, ' '); i > 0 && !strings.HasPrefix(r, "/") {
		return strings.TrimSpace(r[i+1:])
	}
	return r
}

func surfaceFromOpenAPI(source string, data []byte) (*PublishedSurface, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document %s: %w", source, err)
	}
	surface := newPublishedSurface(source)
	if doc.Paths != nil {
		for p, item := range doc.Paths.Map() {
			surface.Routes[NormalizeRoute(p)] = true
			if item == nil {
				continue
			}
			for _, op := range item.Operations() {
				if op != nil && strings.TrimSpace(op.OperationID) != "" {
					surface.Symbols[strings.TrimSpace(op.OperationID)] = true
				}
			}
		}
	}
	if doc.Components != nil {
		for name := range doc.Components.Schemas {
			surface.Symbols[name] = true
		}
	}
	return surface, nil
}

// surfaceFromSwagger reads paths and operationIds from a Swagger 2.0 document
func surfaceFromSwagger(source string, doc map[string]any) *PublishedSurface {
	surface := newPublishedSurface(source)
	pathsNode, _ := doc["paths"].(map[string]any)
	for p, item := range pathsNode {
		surface.Routes[NormalizeRoute(p)] = true
		ops, _ := item.(map[string]any)
		for _, op := range ops {
			if m, ok := op.(map[string]any); ok {
				if id, ok := m["operationId"].(string); ok && id != "" {
					surface.Symbols[id] = true
				}
			}
		}
	}
	if defs, ok := doc["definitions"].(map[string]any); ok {
		for name := range defs {
			surface.Symbols[name] = true
		}
	}
	return surface
}

// ResolverOptions configures a visibility resolver
type ResolverOptions struct {
	FS          fs.FS          // Repository content; nil disables file inspection
	EntryPoints *paths.GlobSet // Entry-point/index file patterns
	Surface     *PublishedSurface
}

// Resolver classifies candidates as public, internal or ambiguous.
//
// Signals are gathered by independent strategies (declaration markers, path
// conventions, module export lists, Python __all__, entry-point files). A
// published surface that covers the candidate overrides all of them.
type Resolver struct {
	fsys    fs.FS
	entries *paths.GlobSet
	surface *PublishedSurface

	mu    sync.Mutex
	files map[string][]string
}

// NewResolver creates a resolver
func NewResolver(opts ResolverOptions) *Resolver {
	return &Resolver{
		fsys:    opts.FS,
		entries: opts.EntryPoints,
		surface: opts.Surface,
		files:   make(map[string][]string),
	}
}

// signals collects public and internal evidence for one candidate
type signals struct {
	public   []string
	internal []string
	exported bool // named by an export list outside its declaration
}

type strategy func(c *Candidate, s *signals)

// Resolve returns exactly one verdict for the candidate
func (r *Resolver) Resolve(c Candidate) VisibilityVerdict {
	v := VisibilityVerdict{Key: c.Key()}
	add := func(detail string) {
		v.Evidence = append(v.Evidence, Evidence{Kind: EvidenceVisibility, Detail: detail})
	}

	if r.surface != nil && r.surface.Covers(&c) {
		if r.surface.Lists(&c) {
			v.Visibility = VisibilityPublic
			add(fmt.Sprintf("listed in published interface %s", r.surface.Source))
		} else {
			v.Visibility = VisibilityInternal
			add(fmt.Sprintf("not listed in published interface %s", r.surface.Source))
		}
		return v
	}

	s := &signals{}
	for _, fn := range []strategy{r.fromMarkers, r.fromPath, r.fromExportLists, r.fromPythonAll, r.fromEntryPoints} {
		fn(&c, s)
	}
	if !s.exported && hasMarker(c.Markers, MarkerNoExport) {
		s.internal = append(s.internal, "declared without export in an ES module")
	}

	for _, d := range s.public {
		add(d)
	}
	for _, d := range s.internal {
		add(d)
	}
	switch {
	case len(s.public) > 0 && len(s.internal) > 0:
		v.Visibility = VisibilityAmbiguous
		add("conflicting visibility signals")
	case len(s.public) > 0:
		v.Visibility = VisibilityPublic
	case len(s.internal) > 0:
		v.Visibility = VisibilityInternal
	default:
		v.Visibility = VisibilityAmbiguous
		add("no visibility signals found")
	}
	return v
}

func hasMarker(markers []string, want string) bool {
	for _, m := range markers {
		if m == want {
			return true
		}
	}
	return false
}

func hasInternalMarker(markers []string) bool {
	for _, m := range markers {
		if IsInternalMarker(m) {
			return true
		}
	}
	return false
}

// fromMarkers maps declaration markers to signals
func (r *Resolver) fromMarkers(c *Candidate, s *signals) {
	if c.SymbolKind == KindRoute && !hasMarker(c.Markers, MarkerRoute) {
		s.public = append(s.public, "HTTP route registration")
	}
	for _, m := range c.Markers {
		switch {
		case m == MarkerRoute:
			s.public = append(s.public, "HTTP route registration")
		case m == MarkerExported:
			s.public = append(s.public, "exported Go identifier")
		case m == MarkerUnexported:
			s.internal = append(s.internal, "unexported Go identifier")
		case m == MarkerUnderscore:
			s.internal = append(s.internal, "leading underscore name")
		case m == MarkerNoExport:
			// decided after export lists are checked
		case IsPublicMarker(m):
			s.public = append(s.public, fmt.Sprintf("declared with %s modifier", m))
		case IsInternalMarker(m):
			s.internal = append(s.internal, fmt.Sprintf("declared with %s modifier", m))
		}
	}
}

// fromPath applies path conventions: Go internal/ packages are not importable from outside the module
func (r *Resolver) fromPath(c *Candidate, s *signals) {
	if path.Ext(c.File) != ".go" {
		return
	}
	if strings.HasPrefix(c.File, "internal/") || strings.Contains(c.File, "/internal/") {
		s.internal = append(s.internal, "declared under an internal/ package path")
	}
}

var jsExts = map[string]bool{".ts": true, ".tsx": true, ".mts": true, ".cts": true, ".js": true, ".jsx": true, ".mjs": true, ".cjs": true}

// fromExportLists finds `export { name }`, `export default name` and CommonJS exports
func (r *Resolver) fromExportLists(c *Candidate, s *signals) {
	if !jsExts[path.Ext(c.File)] || c.Container != "" {
		return
	}
	for _, line := range r.lines(c.File) {
		t := strings.TrimSpace(line)
		isList := strings.HasPrefix(t, "export {") || strings.HasPrefix(t, "export default ") ||
			strings.Contains(t, "module.exports") || strings.HasPrefix(t, "exports.")
		if isList && ContainsToken(t, c.Name) {
			s.public = append(s.public, fmt.Sprintf("exported via %q", t))
			s.exported = true
			return
		}
	}
}

var (
	pyAllStartRe = regexp.MustCompile(`^__all__\s*(?:\+)?=`)
	pyQuotedRe   = regexp.MustCompile(`["']([A-Za-z_]\w*)["']`)
)

// fromPythonAll checks membership in the module's __all__ list
func (r *Resolver) fromPythonAll(c *Candidate, s *signals) {
	ext := path.Ext(c.File)
	if ext != ".py" && ext != ".pyi" {
		return
	}
	names, ok := pythonAll(r.lines(c.File))
	if !ok {
		return
	}
	name := c.Name
	if c.Container != "" {
		if hasInternalMarker(c.Markers) {
			return
		}
		name = c.Container
	}
	if names[name] {
		s.public = append(s.public, "listed in __all__")
		s.exported = true
	} else {
		s.internal = append(s.internal, "not listed in __all__")
	}
}

// pythonAll returns the names in a module-level __all__ assignment
func pythonAll(lines []string) (map[string]bool, bool) {
	names := make(map[string]bool)
	found := false
	inList := false
	for _, line := range lines {
		if !inList {
			if !pyAllStartRe.MatchString(line) {
				continue
			}
			found = true
			inList = true
		}
		for _, m := range pyQuotedRe.FindAllStringSubmatch(line, -1) {
			names[m[1]] = true
		}
		if strings.ContainsAny(line, "])") {
			inList = false
		}
	}
	return names, found
}

// fromEntryPoints checks entry-point membership and re-exports by sibling entry files
func (r *Resolver) fromEntryPoints(c *Candidate, s *signals) {
	if r.entries.Empty() {
		return
	}
	if p, ok := r.entries.MatchPattern(c.File); ok {
		s.public = append(s.public, fmt.Sprintf("declared in entry-point file (matches %s)", p))
		s.exported = true
		return
	}
	if r.fsys == nil || c.Container != "" {
		return
	}

	dir := path.Dir(c.File)
	entries, err := fs.ReadDir(r.fsys, dir)
	if err != nil {
		return
	}
	base := strings.TrimSuffix(path.Base(c.File), path.Ext(c.File))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(names)

	for _, entry := range names {
		if entry == c.File || !r.entries.Match(entry) {
			continue
		}
		for _, line := range r.lines(entry) {
			if reexports(line, base, c.Name) {
				s.public = append(s.public, fmt.Sprintf("re-exported by entry point %s", entry))
				s.exported = true
				return
			}
		}
	}
}

// reexports reports whether an entry-point line re-exports name from module base
func reexports(line, base, name string) bool {
	t := strings.TrimSpace(line)
	refersTo := strings.Contains(t, "'./"+base+"'") || strings.Contains(t, `"./`+base+`"`) ||
		strings.Contains(t, "'./"+base+".") || strings.Contains(t, `"./`+base+`.`) ||
		strings.HasPrefix(t, "from ."+base+" ") || strings.Contains(t, "::"+base+"::")
	switch {
	case refersTo && (strings.HasPrefix(t, "export *") || strings.HasSuffix(t, "import *")):
		return true
	case refersTo && ContainsToken(t, name):
		return true
	case strings.HasPrefix(t, "pub use ") && ContainsToken(t, name):
		return true
	}
	return false
}

// lines returns the file's content split into lines; unreadable files are empty
func (r *Resolver) lines(rel string) []string {
	if r.fsys == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.files[rel]; ok {
		return l
	}
	var l []string
	if data, err := fs.ReadFile(r.fsys, rel); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for sc.Scan() {
			l = append(l, sc.Text())
		}
	}
	r.files[rel] = l
	return l
}
