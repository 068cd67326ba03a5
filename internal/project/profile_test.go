package project

import (
	"strings"
	"testing"

	"changeguard/internal/impact"
	"changeguard/internal/testutil"
)

func TestProfiler_Profile(t *testing.T) {
	tests := []struct {
		name         string
		files        map[string]string
		wantPosture  impact.Posture
		wantEvidence string // Substring expected in one evidence entry
	}{
		{
			name:         "published npm package",
			files:        map[string]string{"package.json": `{"name": "left-pad", "version": "1.2.3"}`},
			wantPosture:  impact.PosturePublishedLibrary,
			wantEvidence: "package.json publishes left-pad@1.2.3",
		},
		{
			name:         "npm package without a valid version",
			files:        map[string]string{"package.json": `{"name": "tool", "version": "latest"}`},
			wantPosture:  impact.PostureStandaloneApp,
			wantEvidence: "no library, workspace or service signals",
		},
		{
			name: "private npm service",
			files: map[string]string{
				"package.json":  `{"name": "api", "version": "1.0.0", "private": true}`,
				"src/server.ts": "const app = express();\napp.get('/users', listUsers);\n",
			},
			wantPosture:  impact.PostureInternalService,
			wantEvidence: "route registration GET /users at src/server.ts:2",
		},
		{
			name:         "npm workspaces",
			files:        map[string]string{"package.json": `{"private": true, "workspaces": ["packages/*"]}`},
			wantPosture:  impact.PostureMonorepo,
			wantEvidence: "package.json declares workspaces",
		},
		{
			name: "pnpm workspace",
			files: map[string]string{
				"package.json":        `{"name": "root", "version": "1.0.0"}`,
				"pnpm-workspace.yaml": "packages:\n  - 'apps/*'\n  - 'libs/*'\n",
			},
			wantPosture:  impact.PostureMonorepo,
			wantEvidence: "pnpm-workspace.yaml lists 2 package globs",
		},
		{
			name:         "lerna",
			files:        map[string]string{"lerna.json": `{"version": "independent"}`},
			wantPosture:  impact.PostureMonorepo,
			wantEvidence: "lerna.json present",
		},
		{
			name: "go library",
			files: map[string]string{
				"go.mod":      "module github.com/acme/lib\n\ngo 1.22\n",
				"lib.go":      "package lib\n\nfunc Parse() {}\n",
				"cmd_test.go": "package main\n",
			},
			wantPosture:  impact.PosturePublishedLibrary,
			wantEvidence: "go.mod module github.com/acme/lib has no main package",
		},
		{
			name: "go command",
			files: map[string]string{
				"go.mod":  "module github.com/acme/tool\n\ngo 1.22\n",
				"main.go": "package main\n\nfunc main() {}\n",
			},
			wantPosture:  impact.PostureStandaloneApp,
			wantEvidence: "no library, workspace or service signals",
		},
		{
			name: "go local module",
			files: map[string]string{
				"go.mod": "module tool\n\ngo 1.22\n",
				"lib.go": "package tool\n",
			},
			wantPosture: impact.PostureStandaloneApp,
		},
		{
			name: "go service",
			files: map[string]string{
				"go.mod":  "module github.com/acme/svc\n\ngo 1.22\n",
				"main.go": "package main\n\nfunc main() {\n\thttp.HandleFunc(\"/health\", health)\n}\n",
			},
			wantPosture:  impact.PostureInternalService,
			wantEvidence: "route registration ANY /health at main.go:4",
		},
		{
			name: "go workspace",
			files: map[string]string{
				"go.work": "go 1.22\n\nuse (\n\t./a\n\t./b\n)\n",
			},
			wantPosture:  impact.PostureMonorepo,
			wantEvidence: "go.work uses 2 modules",
		},
		{
			name: "rust library crate",
			files: map[string]string{
				"Cargo.toml": "[package]\nname = \"tokenize\"\nversion = \"0.3.1\"\n",
				"src/lib.rs": "pub fn split() {}\n",
			},
			wantPosture:  impact.PosturePublishedLibrary,
			wantEvidence: "Cargo.toml publishes tokenize@0.3.1",
		},
		{
			name: "rust binary crate",
			files: map[string]string{
				"Cargo.toml":  "[package]\nname = \"cli\"\nversion = \"0.1.0\"\n",
				"src/main.rs": "fn main() {}\n",
			},
			wantPosture: impact.PostureStandaloneApp,
		},
		{
			name: "rust publish disabled",
			files: map[string]string{
				"Cargo.toml": "[package]\nname = \"internal\"\nversion = \"0.1.0\"\npublish = false\n",
				"src/lib.rs": "pub fn x() {}\n",
			},
			wantPosture:  impact.PostureStandaloneApp,
			wantEvidence: "Cargo.toml sets publish = false",
		},
		{
			name:         "cargo workspace",
			files:        map[string]string{"Cargo.toml": "[workspace]\nmembers = [\"core\", \"cli\"]\n"},
			wantPosture:  impact.PostureMonorepo,
			wantEvidence: "Cargo.toml workspace has 2 members",
		},
		{
			name:         "python package",
			files:        map[string]string{"pyproject.toml": "[project]\nname = \"fetcher\"\nversion = \"2.0.0\"\n"},
			wantPosture:  impact.PosturePublishedLibrary,
			wantEvidence: "pyproject.toml publishes fetcher@2.0.0",
		},
		{
			name:         "poetry package",
			files:        map[string]string{"pyproject.toml": "[tool.poetry]\nname = \"fetcher\"\nversion = \"0.9.0\"\n"},
			wantPosture:  impact.PosturePublishedLibrary,
			wantEvidence: "pyproject.toml publishes fetcher@0.9.0",
		},
		{
			name: "python private classifier",
			files: map[string]string{
				"pyproject.toml": "[project]\nname = \"ops\"\nversion = \"1.0.0\"\nclassifiers = [\"Private :: Do Not Upload\"]\n",
			},
			wantPosture:  impact.PostureStandaloneApp,
			wantEvidence: "pyproject.toml has a Private classifier",
		},
		{
			name: "nested manifests",
			files: map[string]string{
				"services/billing/package.json": `{"name": "billing"}`,
				"services/search/go.mod":        "module search\n",
			},
			wantPosture:  impact.PostureMonorepo,
			wantEvidence: "2 nested manifests",
		},
		{
			name:         "malformed manifest",
			files:        map[string]string{"package.json": "{"},
			wantPosture:  impact.PostureStandaloneApp,
			wantEvidence: "manifest-error: package.json",
		},
		{
			name:         "malformed cargo manifest",
			files:        map[string]string{"Cargo.toml": "[package\n"},
			wantPosture:  impact.PostureStandaloneApp,
			wantEvidence: "manifest-error: Cargo.toml",
		},
		{
			name: "routes in tests are ignored",
			files: map[string]string{
				"package.json":     `{"name": "app", "private": true}`,
				"src/app.test.ts":  "app.get('/users', handler);\n",
				"tests/routes.ts":  "router.post('/login', handler);\n",
				"src/commented.ts": "// app.get('/old', handler);\n",
			},
			wantPosture: impact.PostureStandaloneApp,
		},
		{
			name: "excluded directories are not walked",
			files: map[string]string{
				"main.py":                     "print('hi')\n",
				"node_modules/a/package.json": `{"name": "a"}`,
				"node_modules/b/package.json": `{"name": "b"}`,
				"node_modules/c/server.js":    "app.get('/x', h);\n",
			},
			wantPosture: impact.PostureStandaloneApp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := testutil.NewRepo(t, tt.files)
			got := NewProfiler(DefaultProfilerOptions(), nil).Profile(repo.Root)

			if got.Posture != tt.wantPosture {
				t.Errorf("Posture = %q, want %q (evidence %v)", got.Posture, tt.wantPosture, got.Evidence)
			}
			if tt.wantEvidence != "" && !hasEvidence(got.Evidence, tt.wantEvidence) {
				t.Errorf("Evidence %v does not mention %q", got.Evidence, tt.wantEvidence)
			}
		})
	}
}

func TestProfiler_WorkspaceBeatsPublished(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{
		"package.json": `{"name": "root", "version": "1.0.0", "workspaces": ["packages/*"]}`,
	})
	got := NewProfiler(ProfilerOptions{}, nil).Profile(repo.Root)
	if got.Posture != impact.PostureMonorepo {
		t.Errorf("Posture = %q, want monorepo", got.Posture)
	}
}

func TestProfiler_Language(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{"go.mod": "module github.com/acme/lib\n"})
	got := NewProfiler(ProfilerOptions{}, nil).Profile(repo.Root)
	if got.Language != "go" {
		t.Errorf("Language = %q, want go", got.Language)
	}
	if !hasEvidence(got.Evidence, "language Go from go.mod") {
		t.Errorf("Evidence %v should name the language manifest", got.Evidence)
	}
}

func TestProfiler_EmptyRoot(t *testing.T) {
	got := NewProfiler(ProfilerOptions{}, nil).Profile(t.TempDir())
	if got.Posture != impact.PostureStandaloneApp {
		t.Errorf("Posture = %q, want standalone app", got.Posture)
	}
	if got.Language != "" {
		t.Errorf("Language = %q, want empty", got.Language)
	}
}

func TestProfiler_MissingRoot(t *testing.T) {
	got := NewProfiler(ProfilerOptions{}, nil).Profile("/nonexistent/changeguard/root")
	if got.Posture != impact.PostureStandaloneApp {
		t.Errorf("Posture = %q, want standalone app", got.Posture)
	}
}

func TestProfiler_DepthBound(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{
		"a/b/c/d/e/package.json": `{}`,
		"a/b/c/d/f/package.json": `{}`,
	})
	got := NewProfiler(ProfilerOptions{MaxDepth: 2}, nil).Profile(repo.Root)
	if got.Posture != impact.PostureStandaloneApp {
		t.Errorf("Posture = %q, manifests below the depth bound should not count", got.Posture)
	}
}

func TestValidVersion(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1.2.3", true},
		{"v1.2.3", true},
		{"0.1.0-beta.1", true},
		{"", false},
		{"latest", false},
		{"1.x", false},
	}
	for _, tt := range tests {
		if got := validVersion(tt.in); got != tt.want {
			t.Errorf("validVersion(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func hasEvidence(evidence []string, want string) bool {
	for _, e := range evidence {
		if strings.Contains(e, want) {
			return true
		}
	}
	return false
}
