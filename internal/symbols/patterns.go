package symbols

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"changeguard/internal/impact"
)

// Access markers attached to declarations.
const (
	MarkerExport         = impact.MarkerExport
	MarkerExported       = impact.MarkerExported
	MarkerPublic         = impact.MarkerPublic
	MarkerPub            = impact.MarkerPub
	MarkerRoute          = impact.MarkerRoute
	MarkerUnexported     = impact.MarkerUnexported
	MarkerNoExport       = impact.MarkerNoExport
	MarkerPrivate        = impact.MarkerPrivate
	MarkerProtected      = impact.MarkerProtected
	MarkerInternal       = impact.MarkerInternal
	MarkerFilePrivate    = impact.MarkerFilePrivate
	MarkerPubCrate       = impact.MarkerPubCrate
	MarkerNoPub          = impact.MarkerNoPub
	MarkerUnderscore     = impact.MarkerUnderscore
	MarkerPackagePrivate = impact.MarkerPackagePrivate
)

// Decl is a declaration recognized on a single line.
type Decl struct {
	Name       string
	Kind       impact.SymbolKind
	Signature  string   // Normalized declaration text
	Params     string   // Normalized parameter list, if any
	Container  string   // Enclosing type for members
	Markers    []string // Access markers
	Value      string   // Assigned value for config keys and constants
	OpensScope bool     // Members may follow on subsequent lines
	ScopeOnly  bool     // Introduces a scope but is not itself a declaration (Rust impl blocks)
	Inherit    bool     // Members without explicit markers take this declaration's markers
}

// Scope is an enclosing container used to recognize members.
type Scope struct {
	Name    string
	Kind    impact.SymbolKind
	Indent  int
	Markers []string
	Inherit bool
}

// Valid reports whether the scope names a container
func (s Scope) Valid() bool {
	return s.Name != ""
}

// ScopeFor returns the scope opened by d on the given line.
func ScopeFor(d Decl, line string) Scope {
	return Scope{
		Name:    d.Name,
		Kind:    d.Kind,
		Indent:  IndentWidth(line),
		Markers: d.Markers,
		Inherit: d.Inherit,
	}
}

// Closes reports whether line ends the scope
func (s Scope) Closes(line string, lang Language) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || isComment(line, lang) {
		return false
	}
	if lang.IndentScoped() {
		return IndentWidth(line) <= s.Indent
	}
	return strings.HasPrefix(trimmed, "}") && IndentWidth(line) <= s.Indent
}

// memberOf reports whether line sits at member depth of the scope. Bodies
// nested deeper than one indentation level are not members.
func (s Scope) memberOf(line string) bool {
	if !s.Valid() {
		return false
	}
	w := IndentWidth(line)
	return w > s.Indent && w <= s.Indent+4
}

// IndentWidth counts leading whitespace, tabs as four columns
func IndentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 4
		default:
			return w
		}
	}
	return w
}

// IsCommentLine reports whether the line looks like a comment in any supported language
func IsCommentLine(line string) bool {
	return isComment(line, LangUnknown)
}

func isComment(line string, lang Language) bool {
	t := strings.TrimSpace(line)
	prefixes := []string{"//", "/*", "* ", "<!--"}
	switch lang {
	case LangTypeScript, LangGo, LangJava, LangKotlin, LangCSharp:
		if t == "*" || t == "*/" {
			return true
		}
	case LangRust:
		// attributes start with '#' and are not comments
	default:
		prefixes = append(prefixes, "#")
	}
	for _, p := range prefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// Match returns the first declaration recognized on line.
func Match(line, path string) (Decl, bool) {
	decls := MatchInScope(line, path, Scope{})
	if len(decls) == 0 {
		return Decl{}, false
	}
	return decls[0], true
}

// MatchInScope returns every declaration on line: at most one structural
// declaration followed by route registrations and env var references.
// Members (fields, methods) are only recognized when scope is valid.
func MatchInScope(line, path string, scope Scope) []Decl {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	lang := LanguageFromPath(path)
	if lang == LangUnknown {
		return nil
	}
	if lang.IsConfig() {
		if d, ok := matchConfig(line, lang); ok {
			return []Decl{d}
		}
		return nil
	}
	if isComment(line, lang) {
		return nil
	}

	var out []Decl
	var d Decl
	var ok bool
	switch lang {
	case LangGo:
		d, ok = matchGo(line, scope)
	case LangTypeScript:
		d, ok = matchTS(line, scope)
	case LangPython:
		d, ok = matchPython(line, scope)
	case LangJava, LangKotlin, LangCSharp:
		d, ok = matchJVM(line, lang, scope)
	case LangRust:
		d, ok = matchRust(line, scope)
	case LangRuby:
		d, ok = matchRuby(line, scope)
	case LangPHP:
		d, ok = matchPHP(line, scope)
	}
	if ok {
		out = append(out, d)
	}
	out = append(out, MatchRoutes(line, lang)...)
	out = append(out, MatchEnvRefs(line)...)
	return out
}

// --- Go ---

var (
	goFuncRe   = regexp.MustCompile(`^func\s*(?:\(\s*(?:[A-Za-z_]\w*\s+)?\*?\s*([A-Za-z_]\w*)(?:\[[^\]]*\])?\s*\)\s*)?([A-Za-z_]\w*)\s*(?:\[[^\]]*\])?\s*\((.*)$`)
	goTypeRe   = regexp.MustCompile(`^type\s+([A-Za-z_]\w*)\s*(?:\[[^\]]*\])?\s*(=\s*)?(.*)$`)
	goValueRe  = regexp.MustCompile(`^(const|var)\s+([A-Za-z_]\w*)\s*(.*)$`)
	goIfaceRe  = regexp.MustCompile(`^\s+([A-Za-z_]\w*)\s*\((.*)$`)
	goFieldRe  = regexp.MustCompile(`^\s+([A-Za-z_]\w*)\s+([^\s/=:].*)$`)
	goKeywords = keywordSet("break", "case", "chan", "const", "continue", "default", "defer", "else",
		"fallthrough", "for", "func", "go", "goto", "if", "import", "map", "package", "range",
		"return", "select", "struct", "switch", "type", "var")
)

func goMarkers(name, container string) []string {
	if isUpper(name) && (container == "" || isUpper(container)) {
		return []string{MarkerExported}
	}
	return []string{MarkerUnexported}
}

func matchGo(line string, scope Scope) (Decl, bool) {
	if m := goFuncRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[2], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[3])}
		if m[1] != "" {
			d.Kind = impact.KindMethod
			d.Container = m[1]
		}
		d.Markers = goMarkers(d.Name, d.Container)
		return d, true
	}
	if m := goTypeRe.FindStringSubmatch(line); m != nil {
		rest := strings.TrimSpace(m[3])
		d := Decl{Name: m[1], Kind: impact.KindType, Signature: Normalize(line), Markers: goMarkers(m[1], "")}
		if strings.HasPrefix(rest, "interface") {
			d.Kind = impact.KindInterface
		}
		d.OpensScope = strings.HasSuffix(strings.TrimSpace(stripComment(line, "//")), "{")
		return d, true
	}
	if m := goValueRe.FindStringSubmatch(line); m != nil {
		kind := impact.KindVariable
		if m[1] == "const" {
			kind = impact.KindConstant
		}
		return Decl{Name: m[2], Kind: kind, Signature: Normalize(line), Value: valueAfter(m[3], "="), Markers: goMarkers(m[2], "")}, true
	}
	if !scope.memberOf(line) {
		return Decl{}, false
	}
	if scope.Kind == impact.KindInterface {
		if m := goIfaceRe.FindStringSubmatch(line); m != nil && !goKeywords[m[1]] {
			return Decl{Name: m[1], Kind: impact.KindMethod, Container: scope.Name, Signature: Normalize(line),
				Params: Params(m[2]), Markers: goMarkers(m[1], scope.Name)}, true
		}
		return Decl{}, false
	}
	if m := goFieldRe.FindStringSubmatch(line); m != nil && !goKeywords[m[1]] {
		return Decl{Name: m[1], Kind: impact.KindField, Container: scope.Name, Signature: Normalize(line),
			Markers: goMarkers(m[1], scope.Name)}, true
	}
	return Decl{}, false
}

// --- TypeScript / JavaScript ---

var (
	tsFuncRe     = regexp.MustCompile(`^(export\s+(?:default\s+)?)?(?:declare\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\((.*)$`)
	tsClassRe    = regexp.MustCompile(`^(export\s+(?:default\s+)?)?(?:declare\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)(.*)$`)
	tsIfaceRe    = regexp.MustCompile(`^(export\s+)?(?:declare\s+)?interface\s+([A-Za-z_$][\w$]*)(.*)$`)
	tsAliasRe    = regexp.MustCompile(`^(export\s+)?(?:declare\s+)?type\s+([A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*=(.*)$`)
	tsEnumRe     = regexp.MustCompile(`^(export\s+)?(?:declare\s+)?(?:const\s+)?enum\s+([A-Za-z_$][\w$]*)(.*)$`)
	tsVarRe      = regexp.MustCompile(`^(export\s+)?(?:declare\s+)?(const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::\s*([^=]+?))?\s*(?:=\s*(.*))?$`)
	tsCommonJSRe = regexp.MustCompile(`^(?:module\.)?exports\.([A-Za-z_$][\w$]*)\s*=\s*(.*)$`)
	tsArrowRe    = regexp.MustCompile(`^(?:async\s+)?(?:function\b|\(([^)]*)\)\s*(?::[^=]*)?=>|[A-Za-z_$][\w$]*\s*=>)`)
	tsMethodRe   = regexp.MustCompile(`^\s+((?:(?:public|private|protected|static|readonly|async|abstract|override|get|set)\s+)*)(#?[A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\((.*)$`)
	tsFieldRe    = regexp.MustCompile(`^\s+((?:(?:public|private|protected|static|readonly|declare|override)\s+)*)(#?[A-Za-z_$][\w$]*)\??\s*:\s*([^=;]+?)\s*(?:=.*)?[;,]?\s*$`)
	tsKeywords   = keywordSet("if", "for", "while", "switch", "catch", "return", "function", "new",
		"await", "throw", "typeof", "delete", "case", "default", "else", "do", "try", "super", "this")
)

func tsTopMarkers(export string) []string {
	if strings.TrimSpace(export) != "" {
		return []string{MarkerExport}
	}
	return []string{MarkerNoExport}
}

func modifierMarkers(mods string) []string {
	var out []string
	for _, f := range strings.Fields(mods) {
		switch f {
		case "public":
			out = append(out, MarkerPublic)
		case "private":
			out = append(out, MarkerPrivate)
		case "protected":
			out = append(out, MarkerProtected)
		case "internal":
			out = append(out, MarkerInternal)
		}
	}
	return out
}

func memberMarkers(mods, name string, scope Scope) []string {
	markers := modifierMarkers(mods)
	if strings.HasPrefix(name, "#") {
		markers = append(markers, MarkerPrivate)
	}
	if len(markers) == 0 && scope.Inherit {
		markers = append(markers, scope.Markers...)
	}
	return markers
}

func matchTS(line string, scope Scope) (Decl, bool) {
	if m := tsFuncRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[2], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[3]), Markers: tsTopMarkers(m[1])}, true
	}
	if m := tsClassRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[2], Kind: impact.KindClass, Signature: Normalize(line), Markers: tsTopMarkers(m[1]),
			OpensScope: opensBrace(line), Inherit: true}, true
	}
	if m := tsIfaceRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[2], Kind: impact.KindInterface, Signature: Normalize(line), Markers: tsTopMarkers(m[1]),
			OpensScope: opensBrace(line), Inherit: true}, true
	}
	if m := tsAliasRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[2], Kind: impact.KindType, Signature: Normalize(line), Markers: tsTopMarkers(m[1]),
			OpensScope: opensBrace(line), Inherit: true}, true
	}
	if m := tsEnumRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[2], Kind: impact.KindType, Signature: Normalize(line), Markers: tsTopMarkers(m[1])}, true
	}
	if m := tsVarRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[3], Kind: impact.KindVariable, Signature: Normalize(line), Markers: tsTopMarkers(m[1]), Value: Normalize(m[5])}
		if m[2] == "const" {
			d.Kind = impact.KindConstant
		}
		if a := tsArrowRe.FindStringSubmatch(m[5]); a != nil {
			d.Kind = impact.KindFunction
			if i := strings.Index(m[5], "("); i >= 0 {
				d.Params = Params(m[5][i+1:])
			}
		}
		return d, true
	}
	if m := tsCommonJSRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[1], Kind: impact.KindVariable, Signature: Normalize(line), Markers: []string{MarkerExport}, Value: Normalize(m[2])}
		if tsArrowRe.MatchString(m[2]) {
			d.Kind = impact.KindFunction
			if i := strings.Index(m[2], "("); i >= 0 {
				d.Params = Params(m[2][i+1:])
			}
		}
		return d, true
	}
	if !scope.memberOf(line) {
		return Decl{}, false
	}
	if m := tsMethodRe.FindStringSubmatch(line); m != nil && !tsKeywords[m[2]] {
		norm := Normalize(line)
		// declarations end with a body or carry a return annotation; bare calls do neither
		if opensBrace(line) || strings.Contains(norm, "):") {
			return Decl{Name: m[2], Kind: impact.KindMethod, Container: scope.Name, Signature: norm,
				Params: Params(m[3]), Markers: memberMarkers(m[1], m[2], scope)}, true
		}
	}
	if m := tsFieldRe.FindStringSubmatch(line); m != nil && !tsKeywords[m[2]] {
		return Decl{Name: m[2], Kind: impact.KindField, Container: scope.Name, Signature: Normalize(line),
			Markers: memberMarkers(m[1], m[2], scope)}, true
	}
	return Decl{}, false
}

// --- Python ---

var (
	pyDefRe   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\((.*)$`)
	pyClassRe = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*(\([^)]*\))?\s*:`)
	pyConstRe = regexp.MustCompile(`^([A-Z][A-Z0-9_]*)\s*(?::\s*[^=]+)?=\s*(.+)$`)
	pyFieldRe = regexp.MustCompile(`^\s+([A-Za-z_]\w*)\s*:\s*([^=]+?)\s*(?:=\s*(.*))?$`)
)

func pyMarkers(name string) []string {
	if strings.HasPrefix(name, "_") && !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")) {
		return []string{MarkerUnderscore}
	}
	return nil
}

func matchPython(line string, scope Scope) (Decl, bool) {
	line = stripComment(line, "#")
	if m := pyDefRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[2], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[3]), Markers: pyMarkers(m[2])}
		if m[1] == "" {
			return d, true
		}
		if scope.memberOf(line) {
			d.Kind = impact.KindMethod
			d.Container = scope.Name
			return d, true
		}
		return Decl{}, false
	}
	if m := pyClassRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[1], Kind: impact.KindClass, Signature: Normalize(line), Markers: pyMarkers(m[1]), OpensScope: true}, true
	}
	if m := pyConstRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[1], Kind: impact.KindConstant, Signature: Normalize(line), Value: Normalize(m[2])}, true
	}
	if scope.memberOf(line) {
		if m := pyFieldRe.FindStringSubmatch(line); m != nil {
			return Decl{Name: m[1], Kind: impact.KindField, Container: scope.Name, Signature: Normalize(line), Markers: pyMarkers(m[1])}, true
		}
	}
	return Decl{}, false
}

// --- Java / Kotlin / C# ---

const jvmTypeExpr = `[\w.?\[\]]+(?:<[^()]*>)?(?:\[\])*\??`

var (
	jvmTypeRe     = regexp.MustCompile(`^\s*((?:(?:public|private|protected|internal|static|final|abstract|sealed|open|data|partial|inner|enum|annotation|value|readonly|unsafe|file)\s+)*)(class|interface|enum|record|struct|object|trait|@interface)\s+([A-Za-z_]\w*)(.*)$`)
	jvmMethodRe   = regexp.MustCompile(`^\s*((?:(?:public|private|protected|internal|static|final|abstract|override|virtual|sealed|synchronized|async|default|native|extern|new|unsafe)\s+)+)(?:<[^>]*>\s*)?(` + jvmTypeExpr + `)\s+([A-Za-z_]\w*)\s*\((.*)$`)
	jvmCtorRe     = regexp.MustCompile(`^\s*((?:public|private|protected|internal)\s+)([A-Z]\w*)\s*\((.*)$`)
	jvmIfaceRe    = regexp.MustCompile(`^\s+(` + jvmTypeExpr + `)\s+([A-Za-z_]\w*)\s*\((.*)\)\s*;\s*$`)
	jvmFieldRe    = regexp.MustCompile(`^\s*((?:(?:public|private|protected|internal|static|final|readonly|const|volatile|transient|required)\s+)+)(` + jvmTypeExpr + `)\s+([A-Za-z_]\w*)\s*(?:=\s*(.*?))?;\s*$`)
	jvmPropRe     = regexp.MustCompile(`^\s*((?:(?:public|private|protected|internal|static|virtual|override|abstract|required)\s+)+)(` + jvmTypeExpr + `)\s+([A-Za-z_]\w*)\s*\{\s*(?:get|set|init)`)
	ktFunRe       = regexp.MustCompile(`^\s*((?:(?:public|private|protected|internal|open|override|suspend|inline|abstract|operator|infix|tailrec|external|actual|expect)\s+)*)fun\s+(?:<[^>]*>\s*)?(?:[\w.]+\.)?([A-Za-z_]\w*)\s*\((.*)$`)
	ktPropRe      = regexp.MustCompile(`^\s*((?:(?:public|private|protected|internal|const|override|lateinit|open|abstract)\s+)*)(val|var)\s+([A-Za-z_]\w*)\s*(?::\s*([^=]+?))?\s*(?:=\s*(.*))?$`)
	jvmNonMethods = keywordSet("return", "new", "throw", "else", "if", "while", "for", "switch", "catch")
)

// jvmDefault is the marker for a declaration with no access modifier.
func jvmDefault(lang Language, member bool) string {
	switch lang {
	case LangKotlin:
		return MarkerPublic
	case LangCSharp:
		if member {
			return MarkerPrivate
		}
		return MarkerInternal
	default:
		return MarkerPackagePrivate
	}
}

func jvmMarkers(mods string, lang Language, scope Scope, member bool) []string {
	markers := modifierMarkers(mods)
	if len(markers) > 0 {
		return markers
	}
	if member && scope.Inherit {
		return append([]string(nil), scope.Markers...)
	}
	return []string{jvmDefault(lang, member)}
}

func matchJVM(line string, lang Language, scope Scope) (Decl, bool) {
	member := scope.memberOf(line)
	top := IndentWidth(line) == 0
	if m := jvmTypeRe.FindStringSubmatch(line); m != nil && (top || member) {
		kind := impact.KindClass
		switch m[2] {
		case "interface", "trait", "@interface":
			kind = impact.KindInterface
		case "struct", "enum":
			kind = impact.KindType
		}
		trimmed := strings.TrimSpace(stripComment(line, "//"))
		d := Decl{Name: m[3], Kind: kind, Signature: Normalize(line), Markers: jvmMarkers(m[1], lang, scope, member),
			OpensScope: !strings.HasSuffix(trimmed, ";") && !strings.HasSuffix(trimmed, ")"),
			Inherit:    kind == impact.KindInterface}
		if member {
			d.Container = scope.Name
		}
		return d, true
	}
	if lang == LangKotlin {
		if m := ktFunRe.FindStringSubmatch(line); m != nil && (top || member) {
			d := Decl{Name: m[2], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[3]),
				Markers: jvmMarkers(m[1], lang, scope, member)}
			if member {
				d.Kind, d.Container = impact.KindMethod, scope.Name
			}
			return d, true
		}
		if m := ktPropRe.FindStringSubmatch(line); m != nil && (top || member) {
			d := Decl{Name: m[3], Kind: impact.KindVariable, Signature: Normalize(line), Value: Normalize(m[5]),
				Markers: jvmMarkers(m[1], lang, scope, member)}
			if strings.Contains(m[1], "const") || m[2] == "val" {
				d.Kind = impact.KindConstant
			}
			if member {
				d.Kind, d.Container = impact.KindField, scope.Name
			}
			return d, true
		}
		return Decl{}, false
	}
	if !member {
		return Decl{}, false
	}
	if m := jvmMethodRe.FindStringSubmatch(line); m != nil && !jvmNonMethods[m[3]] {
		return Decl{Name: m[3], Kind: impact.KindMethod, Container: scope.Name, Signature: Normalize(line),
			Params: Params(m[4]), Markers: jvmMarkers(m[1], lang, scope, true)}, true
	}
	if m := jvmCtorRe.FindStringSubmatch(line); m != nil && m[2] == scope.Name {
		return Decl{Name: m[2], Kind: impact.KindMethod, Container: scope.Name, Signature: Normalize(line),
			Params: Params(m[3]), Markers: jvmMarkers(m[1], lang, scope, true)}, true
	}
	if m := jvmFieldRe.FindStringSubmatch(line); m != nil {
		kind := impact.KindField
		if (strings.Contains(m[1], "static") && strings.Contains(m[1], "final")) || strings.Contains(m[1], "const") {
			kind = impact.KindConstant
		}
		return Decl{Name: m[3], Kind: kind, Container: scope.Name, Signature: Normalize(line), Value: Normalize(m[4]),
			Markers: jvmMarkers(m[1], lang, scope, true)}, true
	}
	if m := jvmPropRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[3], Kind: impact.KindField, Container: scope.Name, Signature: Normalize(line),
			Markers: jvmMarkers(m[1], lang, scope, true)}, true
	}
	if scope.Kind == impact.KindInterface {
		if m := jvmIfaceRe.FindStringSubmatch(line); m != nil && !jvmNonMethods[m[1]] {
			return Decl{Name: m[2], Kind: impact.KindMethod, Container: scope.Name, Signature: Normalize(line),
				Params: Params(m[3] + ")"), Markers: jvmMarkers("", lang, scope, true)}, true
		}
	}
	return Decl{}, false
}

// --- Rust ---

var (
	rsFnRe    = regexp.MustCompile(`^(\s*)(pub(?:\s*\([^)]*\))?\s+)?(?:default\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+(?:"[^"]*"\s+)?)?fn\s+([A-Za-z_]\w*)\s*(?:<[^>]*>)?\s*\((.*)$`)
	rsTypeRe  = regexp.MustCompile(`^(pub(?:\s*\([^)]*\))?\s+)?(struct|enum|trait|type|union)\s+([A-Za-z_]\w*)(.*)$`)
	rsImplRe  = regexp.MustCompile(`^impl(?:<[^>]*>)?\s+(?:([\w:]+)(?:<[^>]*>)?\s+for\s+)?([A-Za-z_]\w*)`)
	rsConstRe = regexp.MustCompile(`^(pub(?:\s*\([^)]*\))?\s+)?(const|static)\s+(?:mut\s+)?([A-Za-z_]\w*)\s*:(.*)$`)
	rsFieldRe = regexp.MustCompile(`^\s+(pub(?:\s*\([^)]*\))?\s+)?([a-z_]\w*)\s*:\s*([^,=]+?),?\s*$`)
)

func rsMarkers(pub string) []string {
	pub = strings.TrimSpace(pub)
	switch {
	case pub == "pub":
		return []string{MarkerPub}
	case pub != "":
		return []string{MarkerPubCrate}
	default:
		return []string{MarkerNoPub}
	}
}

func matchRust(line string, scope Scope) (Decl, bool) {
	if m := rsFnRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[3], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[4]), Markers: rsMarkers(m[2])}
		if m[1] == "" {
			return d, true
		}
		if !scope.memberOf(line) {
			return Decl{}, false
		}
		d.Kind, d.Container = impact.KindMethod, scope.Name
		if strings.TrimSpace(m[2]) == "" && scope.Inherit {
			d.Markers = append([]string(nil), scope.Markers...)
		}
		return d, true
	}
	if m := rsTypeRe.FindStringSubmatch(line); m != nil {
		kind := impact.KindType
		if m[2] == "trait" {
			kind = impact.KindInterface
		}
		return Decl{Name: m[3], Kind: kind, Signature: Normalize(line), Markers: rsMarkers(m[1]),
			OpensScope: opensBrace(line), Inherit: kind == impact.KindInterface}, true
	}
	if m := rsImplRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[2], Kind: impact.KindType, ScopeOnly: true, OpensScope: true}
		if m[1] != "" {
			// trait methods are as visible as the trait itself
			d.Markers = []string{MarkerPub}
			d.Inherit = true
		}
		return d, true
	}
	if m := rsConstRe.FindStringSubmatch(line); m != nil {
		return Decl{Name: m[3], Kind: impact.KindConstant, Signature: Normalize(line), Markers: rsMarkers(m[1]),
			Value: valueAfter(m[4], "=")}, true
	}
	if scope.memberOf(line) && scope.Kind == impact.KindType {
		if m := rsFieldRe.FindStringSubmatch(line); m != nil && m[2] != "let" {
			return Decl{Name: m[2], Kind: impact.KindField, Container: scope.Name, Signature: Normalize(line), Markers: rsMarkers(m[1])}, true
		}
	}
	return Decl{}, false
}

// --- Ruby ---

var (
	rbDefRe   = regexp.MustCompile(`^(\s*)def\s+(self\.)?([A-Za-z_]\w*[?!=]?)\s*(?:\((.*))?$`)
	rbClassRe = regexp.MustCompile(`^(\s*)(class|module)\s+([A-Z][\w:]*)(.*)$`)
	rbConstRe = regexp.MustCompile(`^(\s*)([A-Z][A-Z0-9_]*)\s*=\s*(.+)$`)
)

func matchRuby(line string, scope Scope) (Decl, bool) {
	line = stripComment(line, "#")
	member := scope.memberOf(line)
	if m := rbDefRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[3], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[4])}
		if m[1] == "" {
			return d, true
		}
		if !member {
			return Decl{}, false
		}
		d.Kind, d.Container = impact.KindMethod, scope.Name
		return d, true
	}
	if m := rbClassRe.FindStringSubmatch(line); m != nil && (m[1] == "" || member) {
		d := Decl{Name: m[3], Kind: impact.KindClass, Signature: Normalize(line), OpensScope: true}
		if member {
			d.Container = scope.Name
		}
		return d, true
	}
	if m := rbConstRe.FindStringSubmatch(line); m != nil && (m[1] == "" || member) {
		d := Decl{Name: m[2], Kind: impact.KindConstant, Signature: Normalize(line), Value: Normalize(m[3])}
		if member {
			d.Container = scope.Name
		}
		return d, true
	}
	return Decl{}, false
}

// --- PHP ---

var (
	phpFnRe    = regexp.MustCompile(`^(\s*)((?:(?:public|private|protected|static|final|abstract)\s+)*)function\s+&?\s*([A-Za-z_]\w*)\s*\((.*)$`)
	phpClassRe = regexp.MustCompile(`^((?:(?:abstract|final|readonly)\s+)*)(class|interface|trait|enum)\s+([A-Za-z_]\w*)(.*)$`)
	phpConstRe = regexp.MustCompile(`^(\s*)((?:(?:public|private|protected|final)\s+)*)const\s+([A-Za-z_]\w*)\s*=\s*(.*?);`)
	phpPropRe  = regexp.MustCompile(`^\s+((?:(?:public|private|protected|static|readonly|var)\s+)+)(?:\??[\w\\|]+\s+)?\$([A-Za-z_]\w*)\s*(?:=\s*(.*?))?;`)
)

func phpMarkers(mods string, scope Scope) []string {
	markers := modifierMarkers(mods)
	if len(markers) == 0 && scope.Valid() {
		markers = []string{MarkerPublic}
	}
	return markers
}

func matchPHP(line string, scope Scope) (Decl, bool) {
	member := scope.memberOf(line)
	if m := phpFnRe.FindStringSubmatch(line); m != nil {
		d := Decl{Name: m[3], Kind: impact.KindFunction, Signature: Normalize(line), Params: Params(m[4])}
		if m[1] == "" {
			return d, true
		}
		if !member {
			return Decl{}, false
		}
		d.Kind, d.Container, d.Markers = impact.KindMethod, scope.Name, phpMarkers(m[2], scope)
		return d, true
	}
	if m := phpClassRe.FindStringSubmatch(line); m != nil {
		kind := impact.KindClass
		if m[2] == "interface" || m[2] == "trait" {
			kind = impact.KindInterface
		}
		return Decl{Name: m[3], Kind: kind, Signature: Normalize(line), OpensScope: true}, true
	}
	if m := phpConstRe.FindStringSubmatch(line); m != nil && (m[1] == "" || member) {
		d := Decl{Name: m[3], Kind: impact.KindConstant, Signature: Normalize(line), Value: Normalize(m[4])}
		if member {
			d.Container, d.Markers = scope.Name, phpMarkers(m[2], scope)
		}
		return d, true
	}
	if member {
		if m := phpPropRe.FindStringSubmatch(line); m != nil {
			return Decl{Name: m[2], Kind: impact.KindField, Container: scope.Name, Signature: Normalize(line),
				Markers: phpMarkers(m[1], scope)}, true
		}
	}
	return Decl{}, false
}

// --- Config ---

var (
	yamlKeyRe   = regexp.MustCompile(`^\s*([A-Za-z_][\w.\-]*)\s*:(?:\s+(.*?))?\s*$`)
	jsonKeyRe   = regexp.MustCompile(`^\s*"([^"]+)"\s*:\s*(.*?),?\s*$`)
	tomlKeyRe   = regexp.MustCompile(`^\s*([A-Za-z_][\w.\-]*)\s*[=:]\s*(.*?)\s*$`)
	dotenvKeyRe = regexp.MustCompile(`^(?:export\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*?)\s*$`)
)

func matchConfig(line string, lang Language) (Decl, bool) {
	t := strings.TrimSpace(line)
	if strings.HasPrefix(t, "#") || strings.HasPrefix(t, ";") || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "[") {
		return Decl{}, false
	}
	var m []string
	kind := impact.KindConfigKey
	switch lang {
	case LangYAML:
		m = yamlKeyRe.FindStringSubmatch(stripComment(line, "#"))
	case LangJSON:
		m = jsonKeyRe.FindStringSubmatch(line)
	case LangTOML:
		m = tomlKeyRe.FindStringSubmatch(stripComment(line, "#"))
	case LangDotenv:
		m = dotenvKeyRe.FindStringSubmatch(stripComment(line, "#"))
		kind = impact.KindEnvVar
	}
	if m == nil {
		return Decl{}, false
	}
	value := Normalize(m[2])
	return Decl{Name: m[1], Kind: kind, Signature: Normalize(m[1] + ": " + value), Value: value}, true
}

// --- routes and env references ---

var routePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:app|router|server|api|r|e|g|mux|route|routes|srv|v1|v2|group|engine)\.(get|post|put|patch|delete|head|options|all|Get|Post|Put|Patch|Delete|Head|Options|GET|POST|PUT|PATCH|DELETE|HEAD|OPTIONS|Handle|HandleFunc|Any|Route)\(\s*["'\x60]([^"'\x60]+)["'\x60]`),
	regexp.MustCompile(`\bhttp\.(Handle|HandleFunc)\(\s*"([^"]+)"`),
	regexp.MustCompile(`@\w+\.(route|get|post|put|patch|delete)\(\s*["']([^"']+)["']`),
	regexp.MustCompile(`@(Get|Post|Put|Patch|Delete|Request)Mapping\(\s*(?:(?:value|path)\s*=\s*)?\{?\s*"([^"]+)"`),
	regexp.MustCompile(`\[(?:Http)?(Get|Post|Put|Patch|Delete|Route)\(\s*"([^"]+)"`),
}

var railsRouteRe = regexp.MustCompile(`^\s*(get|post|put|patch|delete)\s+['"]([^'"]+)['"]`)

func routeMethod(verb string) string {
	switch strings.ToLower(verb) {
	case "get", "post", "put", "patch", "delete", "head", "options":
		return strings.ToUpper(verb)
	default:
		return "ANY"
	}
}

// MatchRoutes finds endpoint registrations on a code line
func MatchRoutes(line string, lang Language) []Decl {
	var out []Decl
	add := func(verb, path string) {
		method := routeMethod(verb)
		// net/http patterns may carry the method inline: "GET /users/{id}"
		if i := strings.IndexByte(path, ' '); i > 0 && method == "ANY" {
			method, path = strings.ToUpper(path[:i]), strings.TrimSpace(path[i+1:])
		}
		out = append(out, Decl{Name: path, Kind: impact.KindRoute, Signature: method + " " + path, Markers: []string{MarkerRoute}})
	}
	for _, re := range routePatterns {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			add(m[1], m[2])
		}
	}
	if lang == LangRuby {
		if m := railsRouteRe.FindStringSubmatch(line); m != nil {
			add(m[1], m[2])
		}
	}
	return out
}

var envPatterns = []*regexp.Regexp{
	regexp.MustCompile(`os\.(?:Getenv|LookupEnv)\(\s*"([^"]+)"`),
	regexp.MustCompile(`process\.env\.([A-Za-z_][A-Za-z0-9_]*)`),
	regexp.MustCompile(`process\.env\[\s*["'\x60]([^"'\x60]+)["'\x60]`),
	regexp.MustCompile(`os\.(?:environ\.get|getenv)\(\s*["']([^"']+)["']`),
	regexp.MustCompile(`os\.environ\[\s*["']([^"']+)["']`),
	regexp.MustCompile(`System\.getenv\(\s*"([^"]+)"`),
	regexp.MustCompile(`Environment\.GetEnvironmentVariable\(\s*"([^"]+)"`),
	regexp.MustCompile(`env::var(?:_os)?\(\s*"([^"]+)"`),
	regexp.MustCompile(`ENV(?:\.fetch\(|\[)\s*["']([^"']+)["']`),
	regexp.MustCompile(`getenv\(\s*["']([^"']+)["']`),
	regexp.MustCompile(`\$_ENV\[\s*["']([^"']+)["']`),
}

// MatchEnvRefs finds environment variable reads on a code line
func MatchEnvRefs(line string) []Decl {
	var out []Decl
	seen := make(map[string]bool)
	for _, re := range envPatterns {
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			out = append(out, Decl{Name: m[1], Kind: impact.KindEnvVar, Signature: m[1]})
		}
	}
	return out
}

// --- helpers ---

// Normalize collapses whitespace and trims comments and trailing punctuation
// so that reformatted declarations compare equal.
func Normalize(s string) string {
	s = stripComment(s, "//")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, "{;, ")
}

// Params returns the normalized text up to the parenthesis that closes an
// already opened parameter list. If it never closes, the remainder is used.
func Params(rest string) string {
	depth := 1
	for i, r := range rest {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return strings.Join(strings.Fields(rest[:i]), " ")
			}
		}
	}
	return Normalize(rest)
}

// stripComment removes a trailing comment introduced by marker outside quotes
func stripComment(s, marker string) string {
	var quote rune
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
		case strings.HasPrefix(s[i:], marker):
			if i == 0 || s[i-1] == ' ' || s[i-1] == '\t' {
				return strings.TrimRight(s[:i], " \t")
			}
		}
	}
	return s
}

func valueAfter(s, sep string) string {
	if i := strings.Index(s, sep); i >= 0 {
		return Normalize(s[i+len(sep):])
	}
	return ""
}

func opensBrace(line string) bool {
	return strings.HasSuffix(strings.TrimSpace(stripComment(line, "//")), "{")
}

func isUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func keywordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
