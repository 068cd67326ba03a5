// Package project inspects a repository root: which language it is written
// in and how it is distributed (its posture).
package project

import (
	"os"
	"path/filepath"
)

// Language represents a programming language.
type Language string

const (
	LangGo         Language = "go"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJava       Language = "java"
	LangKotlin     Language = "kotlin"
	LangRuby       Language = "ruby"
	LangPHP        Language = "php"
	LangUnknown    Language = "unknown"
)

// rootManifests lists language manifests in priority order
var rootManifests = []struct {
	path string
	lang Language
}{
	{"go.mod", LangGo},
	{"package.json", LangTypeScript}, // Assume TS for package.json, refine below
	{"Cargo.toml", LangRust},
	{"pyproject.toml", LangPython},
	{"requirements.txt", LangPython},
	{"setup.py", LangPython},
	{"pom.xml", LangJava},
	{"build.gradle", LangJava},
	{"build.gradle.kts", LangKotlin},
	{"Gemfile", LangRuby},
	{"composer.json", LangPHP},
}

// DetectLanguage detects the primary language of a project from manifest files.
// Returns the language, manifest path, and whether detection succeeded.
func DetectLanguage(root string) (Language, string, bool) {
	for _, m := range rootManifests {
		fullPath := filepath.Join(root, m.path)
		if _, err := os.Stat(fullPath); err == nil {
			lang := m.lang
			// Refine TypeScript vs JavaScript check
			if m.path == "package.json" {
				lang = detectJSorTS(root)
			}
			return lang, m.path, true
		}
	}

	return LangUnknown, "", false
}

// detectJSorTS checks if a project is TypeScript or JavaScript.
func detectJSorTS(root string) Language {
	if _, err := os.Stat(filepath.Join(root, "tsconfig.json")); err == nil {
		return LangTypeScript
	}
	if hasFileWithExt(root, ".ts") {
		return LangTypeScript
	}
	return LangJavaScript
}

// hasFileWithExt checks if any file with the given extension exists in the root or src/.
func hasFileWithExt(root, ext string) bool {
	for _, dir := range []string{root, filepath.Join(root, "src")} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() && filepath.Ext(e.Name()) == ext {
				return true
			}
		}
	}
	return false
}

// LanguageDisplayName returns a human-readable name for the language.
func LanguageDisplayName(lang Language) string {
	switch lang {
	case LangGo:
		return "Go"
	case LangTypeScript:
		return "TypeScript"
	case LangJavaScript:
		return "JavaScript"
	case LangPython:
		return "Python"
	case LangRust:
		return "Rust"
	case LangJava:
		return "Java"
	case LangKotlin:
		return "Kotlin"
	case LangRuby:
		return "Ruby"
	case LangPHP:
		return "PHP"
	default:
		return "Unknown"
	}
}
