package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// rootFacts is what the root manifests say about how the project ships
type rootFacts struct {
	workspace []string // Workspace declarations
	published []string // Root packages with a name and a valid version
	private   []string // Explicit opt-outs from publishing
	errors    []string // manifest-error evidence
	goModule  string
}

// validVersion reports whether a manifest version is a semantic version
func validVersion(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}

// readManifest returns the file's content, false when it does not exist, and
// records unreadable files as manifest errors.
func (f *rootFacts) readManifest(root, name string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		if !os.IsNotExist(err) {
			f.fail(name, err)
		}
		return nil, false
	}
	return data, true
}

func (f *rootFacts) fail(name string, err error) {
	f.errors = append(f.errors, fmt.Sprintf("manifest-error: %s: %v", name, err))
}

type packageJSON struct {
	Name       string          `json:"name"`
	Version    string          `json:"version"`
	Private    bool            `json:"private"`
	Workspaces json.RawMessage `json:"workspaces"`
}

func (f *rootFacts) readPackageJSON(root string) {
	data, ok := f.readManifest(root, "package.json")
	if !ok {
		return
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		f.fail("package.json", err)
		return
	}

	if ws := strings.TrimSpace(string(pkg.Workspaces)); ws != "" && ws != "null" && ws != "[]" && ws != "{}" {
		f.workspace = append(f.workspace, "package.json declares workspaces")
	}
	if pkg.Private {
		f.private = append(f.private, "package.json is private")
		return
	}
	if pkg.Name != "" && validVersion(pkg.Version) {
		f.published = append(f.published, fmt.Sprintf("package.json publishes %s@%s", pkg.Name, pkg.Version))
	}
}

func (f *rootFacts) readLerna(root string) {
	if _, ok := f.readManifest(root, "lerna.json"); ok {
		f.workspace = append(f.workspace, "lerna.json present")
	}
}

type pnpmWorkspace struct {
	Packages []string `yaml:"packages"`
}

func (f *rootFacts) readPnpmWorkspace(root string) {
	data, ok := f.readManifest(root, "pnpm-workspace.yaml")
	if !ok {
		return
	}
	var ws pnpmWorkspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		f.fail("pnpm-workspace.yaml", err)
		return
	}
	if len(ws.Packages) > 0 {
		f.workspace = append(f.workspace, fmt.Sprintf("pnpm-workspace.yaml lists %d package globs", len(ws.Packages)))
	}
}

func (f *rootFacts) readGoWork(root string) {
	data, ok := f.readManifest(root, "go.work")
	if !ok {
		return
	}
	work, err := modfile.ParseWork("go.work", data, nil)
	if err != nil {
		f.fail("go.work", err)
		return
	}
	if len(work.Use) > 0 {
		f.workspace = append(f.workspace, fmt.Sprintf("go.work uses %d modules", len(work.Use)))
	}
}

func (f *rootFacts) readGoMod(root string) {
	data, ok := f.readManifest(root, "go.mod")
	if !ok {
		return
	}
	mod, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		f.fail("go.mod", err)
		return
	}
	if mod.Module != nil {
		f.goModule = mod.Module.Mod.Path
	}
}

// importable reports whether a Go module path can be fetched by other modules
func importable(modulePath string) bool {
	first, _, _ := strings.Cut(modulePath, "/")
	return strings.Contains(first, ".")
}

type cargoManifest struct {
	Package *struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"` // String, or a table when inherited from the workspace
		Publish any    `toml:"publish"` // false, or a list of registries
	} `toml:"package"`
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
	Lib *struct {
		Name string `toml:"name"`
	} `toml:"lib"`
}

func (f *rootFacts) readCargo(root string) {
	data, ok := f.readManifest(root, "Cargo.toml")
	if !ok {
		return
	}
	var cargo cargoManifest
	if err := toml.Unmarshal(data, &cargo); err != nil {
		f.fail("Cargo.toml", err)
		return
	}

	if cargo.Workspace != nil && len(cargo.Workspace.Members) > 0 {
		f.workspace = append(f.workspace, fmt.Sprintf("Cargo.toml workspace has %d members", len(cargo.Workspace.Members)))
	}
	if cargo.Package == nil {
		return
	}
	if publish, ok := cargo.Package.Publish.(bool); ok && !publish {
		f.private = append(f.private, "Cargo.toml sets publish = false")
		return
	}
	if cargo.Lib == nil && exists(root, "src/main.rs") && !exists(root, "src/lib.rs") {
		return
	}
	version, _ := cargo.Package.Version.(string)
	if cargo.Package.Name != "" && validVersion(version) {
		f.published = append(f.published, fmt.Sprintf("Cargo.toml publishes %s@%s", cargo.Package.Name, version))
	}
}

type pyPackage struct {
	Name        string   `toml:"name"`
	Version     string   `toml:"version"`
	Classifiers []string `toml:"classifiers"`
}

type pyproject struct {
	Project *pyPackage `toml:"project"`
	Tool    struct {
		Poetry *pyPackage `toml:"poetry"`
	} `toml:"tool"`
}

func (f *rootFacts) readPyproject(root string) {
	data, ok := f.readManifest(root, "pyproject.toml")
	if !ok {
		return
	}
	var py pyproject
	if err := toml.Unmarshal(data, &py); err != nil {
		f.fail("pyproject.toml", err)
		return
	}

	pkg := py.Project
	if pkg == nil {
		pkg = py.Tool.Poetry
	}
	if pkg == nil {
		return
	}
	for _, c := range pkg.Classifiers {
		if strings.HasPrefix(c, "Private ::") {
			f.private = append(f.private, "pyproject.toml has a Private classifier")
			return
		}
	}
	if pkg.Name != "" && validVersion(pkg.Version) {
		f.published = append(f.published, fmt.Sprintf("pyproject.toml publishes %s@%s", pkg.Name, pkg.Version))
	}
}

func exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}
