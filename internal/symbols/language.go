// Package symbols provides lexical declaration matching for diff lines and source files.
//
// Matching is line based and deliberately shallow: a line either looks like a
// declaration in one of the supported language families or it is ignored.
package symbols

import (
	"path/filepath"
	"strings"
)

// Language is a coarse language family used to select patterns.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
	LangCSharp     Language = "csharp"
	LangRust       Language = "rust"
	LangRuby       Language = "ruby"
	LangPHP        Language = "php"
	LangYAML       Language = "yaml"
	LangJSON       Language = "json"
	LangTOML       Language = "toml"
	LangDotenv     Language = "dotenv"
	LangUnknown    Language = "unknown"
)

var extLanguages = map[string]Language{
	".go":         LangGo,
	".ts":         LangTypeScript,
	".tsx":        LangTypeScript,
	".mts":        LangTypeScript,
	".cts":        LangTypeScript,
	".js":         LangTypeScript,
	".jsx":        LangTypeScript,
	".mjs":        LangTypeScript,
	".cjs":        LangTypeScript,
	".py":         LangPython,
	".pyi":        LangPython,
	".java":       LangJava,
	".scala":      LangJava,
	".kt":         LangKotlin,
	".kts":        LangKotlin,
	".cs":         LangCSharp,
	".rs":         LangRust,
	".rb":         LangRuby,
	".php":        LangPHP,
	".yaml":       LangYAML,
	".yml":        LangYAML,
	".json":       LangJSON,
	".toml":       LangTOML,
	".ini":        LangTOML,
	".properties": LangTOML,
	".env":        LangDotenv,
}

// LanguageFromPath maps a file path to its language family.
func LanguageFromPath(path string) Language {
	base := filepath.Base(path)
	if base == ".env" || strings.HasPrefix(base, ".env.") {
		return LangDotenv
	}
	if lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return LangUnknown
}

// IsConfig reports whether the language is a configuration format
func (l Language) IsConfig() bool {
	switch l {
	case LangYAML, LangJSON, LangTOML, LangDotenv:
		return true
	}
	return false
}

// IsESModule reports whether declarations need an explicit export to leave the file
func (l Language) IsESModule() bool {
	return l == LangTypeScript
}

// IndentScoped reports whether scopes are closed by dedent rather than braces
func (l Language) IndentScoped() bool {
	return l == LangPython || l == LangYAML || l == LangRuby
}
