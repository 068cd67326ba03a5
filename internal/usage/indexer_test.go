package usage

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"changeguard/internal/impact"
	"changeguard/internal/testutil"
)

const mainGo = `package main

func main() {
	u := api.GetUser(1)
	v := api.GetUser(2); w := api.GetUser(3)
	// GetUser is deprecated
}
`

func newIndexer(t *testing.T, opts Options) *Indexer {
	t.Helper()
	if opts.TestGlobs == nil {
		opts.TestGlobs = []string{"**/*_test.go", "test/**"}
	}
	ix, err := NewIndexer(opts, nil)
	if err != nil {
		t.Fatalf("NewIndexer: %v", err)
	}
	return ix
}

func removed(name, file string) impact.Candidate {
	return impact.Candidate{Name: name, File: file, Kind: impact.ChangeRemoved, SymbolKind: impact.KindFunction}
}

func TestIndex_CountsUsages(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{
		"api/user.go":      "package api\n\nfunc Other() {}\n",
		"api/user_test.go": "package api\n\nfunc TestX() { GetUser(1) }\n",
		"cmd/main.go":      mainGo,
		"web/handler.go":   "x := GetUserByID()\ny := getUser()\n",
	})
	ix := newIndexer(t, Options{Root: repo.Root})

	c := removed("GetUser", "api/user.go")
	res, err := ix.Index(context.Background(), []impact.Candidate{c}, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	u, ok := res.Usages[c.Key()]
	if !ok {
		t.Fatal("missing result for candidate")
	}

	want := []impact.UsageRecord{
		{Key: c.Key(), File: "api/user_test.go", Line: 3, IsTest: true},
		{Key: c.Key(), File: "cmd/main.go", Line: 4},
		{Key: c.Key(), File: "cmd/main.go", Line: 5},
		{Key: c.Key(), File: "cmd/main.go", Line: 6, InComment: true},
	}
	if !reflect.DeepEqual(u.Records, want) {
		t.Errorf("Records = %+v\nwant %+v", u.Records, want)
	}
	if u.NonTestCount() != 3 || u.TestCount() != 1 {
		t.Errorf("counts = %d/%d, want 3/1", u.NonTestCount(), u.TestCount())
	}
	if !u.Scanned || u.Incomplete {
		t.Errorf("Scanned = %v, Incomplete = %v", u.Scanned, u.Incomplete)
	}
	if u.FilesTotal != 4 || u.FilesScanned != 4 || u.FilesSkipped != 0 {
		t.Errorf("files = %d/%d/%d, want 4/4/0", u.FilesScanned, u.FilesSkipped, u.FilesTotal)
	}
}

func TestIndex_Exclusions(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{
		"api/user.go": "package api\n\nfunc GetUser(id string, opts Options) {}\n",
		"cmd/main.go": mainGo,
	})
	ix := newIndexer(t, Options{Root: repo.Root})

	c := impact.Candidate{
		Name:         "GetUser",
		File:         "api/user.go",
		Kind:         impact.ChangeSignatureChanged,
		OldSignature: "func GetUser(id string)",
		NewSignature: "func GetUser(id string, opts Options)",
		Line:         3,
	}
	excl := NewExclusions(map[string][]int{"cmd/main.go": {5}})
	res, err := ix.Index(context.Background(), []impact.Candidate{c}, excl)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	var got []string
	for _, r := range res.Usages[c.Key()].Records {
		got = append(got, fmt.Sprintf("%s:%d", r.File, r.Line))
	}
	want := []string{"cmd/main.go:4", "cmd/main.go:6"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("usages = %v, want %v", got, want)
	}
}

func TestIndex_AddedCandidatesNotScanned(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{"a.go": "Config\n"})
	ix := newIndexer(t, Options{Root: repo.Root})

	added := impact.Candidate{Name: "Config", File: "a.go", Kind: impact.ChangeAdded}
	colliding := impact.Candidate{Name: "Config", File: "b.go", Kind: impact.ChangeSignatureChanged, Collides: true}
	res, err := ix.Index(context.Background(), []impact.Candidate{added, colliding}, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if u := res.Usages[added.Key()]; u.Scanned || len(u.Records) != 0 {
		t.Errorf("plain addition should not be scanned: %+v", u)
	}
	if u := res.Usages[colliding.Key()]; !u.Scanned || len(u.Records) != 1 {
		t.Errorf("colliding addition should be scanned: %+v", u)
	}
}

func TestIndex_FileSet(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{
		"src/app.ts":                "getUser()\n",
		"node_modules/lib/index.js": "getUser()\n",
		"gen/api.gen.go":            "getUser()\n",
		"big.js":                    strings.Repeat("getUser()\n", 200),
	})
	repo.WriteBytes("assets/logo.png", []byte{0x89, 'P', 'N', 'G'})
	repo.WriteBytes("data/blob.txt", []byte("getUser\x00\x01\x02"))

	ix := newIndexer(t, Options{
		Root:             repo.Root,
		ExcludeDirs:      []string{"node_modules"},
		ExcludeGlobs:     []string{"**/*.gen.go"},
		MaxFileSizeBytes: 1000,
	})
	files, err := ix.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if want := []string{"data/blob.txt", "src/app.ts"}; !reflect.DeepEqual(files, want) {
		t.Errorf("Files() = %v, want %v", files, want)
	}

	c := removed("getUser", "src/user.ts")
	res, err := ix.Index(context.Background(), []impact.Candidate{c}, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	u := res.Usages[c.Key()]
	if u.FilesSkipped != 1 || u.FilesScanned != 1 || len(u.Records) != 1 {
		t.Errorf("got %+v, want 1 skipped, 1 scanned, 1 record", u)
	}
	if want := []string{"binary file skipped: data/blob.txt"}; !reflect.DeepEqual(res.Warnings, want) {
		t.Errorf("Warnings = %v, want %v", res.Warnings, want)
	}
}

func TestIndex_CallerFileList(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{
		"a.go": "Load()\n",
		"b.go": "Load()\n",
	})
	ix := newIndexer(t, Options{Root: repo.Root, Files: []string{"./b.go", "missing.go"}})

	c := removed("Load", "cfg.go")
	res, err := ix.Index(context.Background(), []impact.Candidate{c}, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	u := res.Usages[c.Key()]
	if len(u.Records) != 1 || u.Records[0].File != "b.go" {
		t.Errorf("Records = %+v, want one usage in b.go", u.Records)
	}
	if u.FilesSkipped != 1 || len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "missing.go") {
		t.Errorf("missing file should be skipped with a warning: %+v %v", u, res.Warnings)
	}
}

func TestIndex_DeterministicAcrossWorkerCounts(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 30; i++ {
		files[fmt.Sprintf("pkg%d/f.go", i)] = "a := Parse(x)\nb := 1\nc := Parse(y)\n"
	}
	repo := testutil.NewRepo(t, files)
	cands := []impact.Candidate{removed("Parse", "parse.go"), removed("b", "vars.go")}

	var first map[impact.CandidateKey]impact.UsageResult
	for _, workers := range []int{1, 3, 16} {
		ix := newIndexer(t, Options{Root: repo.Root, CandidateWorkers: workers, FileWorkers: workers, MaxOpenFiles: 2})
		res, err := ix.Index(context.Background(), cands, nil)
		if err != nil {
			t.Fatalf("Index: %v", err)
		}
		if first == nil {
			first = res.Usages
			continue
		}
		if !reflect.DeepEqual(first, res.Usages) {
			t.Errorf("results with %d workers differ from the first run", workers)
		}
	}
	if n := len(first[cands[0].Key()].Records); n != 60 {
		t.Errorf("Parse usages = %d, want 60", n)
	}
}

func TestIndex_DeadlineReturnsPartialEvidence(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 10; i++ {
		files[fmt.Sprintf("f%02d.go", i)] = "Fetch()\n"
	}
	repo := testutil.NewRepo(t, files)
	ix := newIndexer(t, Options{Root: repo.Root, CandidateWorkers: 1, FileWorkers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var mu sync.Mutex
	reads := 0
	ix.beforeRead = func(string) {
		mu.Lock()
		defer mu.Unlock()
		reads++
		if reads == 6 {
			cancel()
		}
	}

	c := removed("Fetch", "fetch.go")
	res, err := ix.Index(ctx, []impact.Candidate{c}, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	u := res.Usages[c.Key()]
	if !u.Incomplete {
		t.Fatal("expected incomplete evidence")
	}
	if u.FilesScanned != 6 || u.FilesTotal != 10 || len(u.Records) != 6 {
		t.Errorf("got scanned=%d total=%d records=%d, want 6/10/6", u.FilesScanned, u.FilesTotal, len(u.Records))
	}
}

func TestIndex_ExpiredContext(t *testing.T) {
	repo := testutil.NewRepo(t, map[string]string{"a.go": "X()\n", "b.go": "Y()\n"})
	ix := newIndexer(t, Options{Root: repo.Root})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cands := []impact.Candidate{removed("X", "x.go"), removed("Y", "y.go")}
	res, err := ix.Index(ctx, cands, nil)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	for _, c := range cands {
		u := res.Usages[c.Key()]
		if !u.Incomplete || u.FilesScanned != 0 || len(u.Records) != 0 {
			t.Errorf("%s: got %+v, want incomplete with nothing scanned", c.Name, u)
		}
	}
}

func TestNewIndexer_InvalidGlob(t *testing.T) {
	if _, err := NewIndexer(Options{TestGlobs: []string{"[unclosed"}}, nil); err == nil {
		t.Error("expected an error for an invalid test glob")
	}
	if _, err := NewIndexer(Options{ExcludeGlobs: []string{"[unclosed"}}, nil); err == nil {
		t.Error("expected an error for an invalid exclude glob")
	}
}

func TestIsBinaryPath(t *testing.T) {
	tests := map[string]bool{
		"logo.PNG":   true,
		"lib.so":     true,
		"main.go":    false,
		"README":     false,
		"data.jsonl": false,
	}
	for path, want := range tests {
		if got := IsBinaryPath(path); got != want {
			t.Errorf("IsBinaryPath(%q) = %v, want %v", path, got, want)
		}
	}
}
