package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	cgerrors "changeguard/internal/errors"
	"changeguard/internal/impact"
	"changeguard/internal/output"
	"changeguard/internal/testutil"
)

const removeGetUser = "diff --git a/api/user.go b/api/user.go\n" +
	"index 1111111..2222222 100644\n" +
	"--- a/api/user.go\n" +
	"+++ b/api/user.go\n" +
	"@@ -1,7 +1,3 @@\n" +
	" package api\n" +
	" \n" +
	"-func GetUser(id string) (*User, error) {\n" +
	"-\treturn store.Find(id)\n" +
	"-}\n" +
	"-\n" +
	" func Other() {}\n"

func newFixture(t *testing.T) *testutil.Repo {
	t.Helper()
	return testutil.NewRepo(t, map[string]string{
		"go.mod":             "module example.com/app\n\ngo 1.22\n",
		"api/user.go":        "package api\n\nfunc Other() {}\n",
		"cmd/server/main.go": "package main\n\nfunc main() {\n\tapi.GetUser(\"1\")\n}\n",
	})
}

// resetFlags returns every flag of cmd and its subcommands to its default,
// since the commands and their flag variables are package-level.
func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		if err := f.Value.Set(f.DefValue); err != nil {
			t.Fatalf("reset --%s: %v", f.Name, err)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(t, sub)
	}
}

// run executes the CLI with stdin and returns stdout, stderr and the error
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(t, rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestAnalyze_JSON(t *testing.T) {
	repo := newFixture(t)

	stdout, _, err := run(t, removeGetUser, "analyze", "--root", repo.Root, "--format", "json", "--fail-on", "never")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var report struct {
		Verdict  string `json:"verdict"`
		Breaking []struct {
			Symbol   string `json:"symbol"`
			Severity string `json:"severity"`
		} `json:"breaking"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if report.Verdict != "1 breaking, 0 risky" {
		t.Errorf("verdict = %q", report.Verdict)
	}
	if len(report.Breaking) != 1 || report.Breaking[0].Symbol != "GetUser" {
		t.Errorf("breaking = %+v", report.Breaking)
	}
}

func TestAnalyze_FailOnThreshold(t *testing.T) {
	repo := newFixture(t)

	stdout, _, err := run(t, removeGetUser, "analyze", "--root", repo.Root)
	if got := exitCode(err); got != cgerrors.ExitThreshold {
		t.Fatalf("exit code = %d, want %d (err %v)", got, cgerrors.ExitThreshold, err)
	}
	if !strings.Contains(stdout, "BREAKING (1)") {
		t.Errorf("human output missing breaking group:\n%s", stdout)
	}
}

func TestAnalyze_SARIF(t *testing.T) {
	repo := newFixture(t)
	diffPath := filepath.Join(t.TempDir(), "change.patch")
	if err := os.WriteFile(diffPath, []byte(removeGetUser), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := run(t, "", "analyze", "--root", repo.Root, "--diff", diffPath, "--format", "sarif", "--fail-on", "never")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var log map[string]any
	if err := json.Unmarshal([]byte(stdout), &log); err != nil {
		t.Fatalf("invalid SARIF: %v", err)
	}
	if log["version"] != "2.1.0" || !strings.Contains(stdout, "changeguard/removed") {
		t.Errorf("unexpected SARIF:\n%s", stdout)
	}
}

func TestWriteReport_SARIFEndsWithNewline(t *testing.T) {
	var buf bytes.Buffer
	if err := writeReport(&buf, output.Assemble(nil, output.Options{}), "sarif"); err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	out := buf.String()
	if !strings.HasSuffix(out, "}\n") || strings.HasSuffix(out, "\n\n") {
		t.Errorf("SARIF output should end with exactly one newline: %q", out[max(0, len(out)-10):])
	}
}

func TestAnalyze_MetricsOut(t *testing.T) {
	repo := newFixture(t)
	metricsPath := filepath.Join(t.TempDir(), "metrics.prom")

	if _, _, err := run(t, removeGetUser, "analyze", "--root", repo.Root, "--fail-on", "never", "--metrics-out", metricsPath); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(data), `changeguard_findings_total{severity="breaking"} 1`) {
		t.Errorf("metrics missing breaking finding:\n%s", data)
	}
}

func TestAnalyze_BadInput(t *testing.T) {
	repo := newFixture(t)

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{"malformed diff", "not a diff\n", []string{"analyze", "--root", repo.Root}},
		{"unknown format", removeGetUser, []string{"analyze", "--root", repo.Root, "--format", "xml"}},
		{"unknown test result", removeGetUser, []string{"analyze", "--root", repo.Root, "--test-result", "maybe"}},
		{"unknown fail-on", removeGetUser, []string{"analyze", "--root", repo.Root, "--fail-on", "sometimes"}},
		{"missing root", removeGetUser, []string{"analyze", "--root", filepath.Join(repo.Root, "nope")}},
		{"missing manifest", removeGetUser, []string{"analyze", "--root", repo.Root, "--manifest", filepath.Join(repo.Root, "api.yaml")}},
		{"unknown flag", removeGetUser, []string{"analyze", "--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.stdin, tt.args...)
			if got := exitCode(err); got != cgerrors.ExitBadInput {
				t.Errorf("exit code = %d, want %d (err %v)", got, cgerrors.ExitBadInput, err)
			}
		})
	}
}

func TestParseTestResult(t *testing.T) {
	tests := []struct {
		in   string
		want *impact.TestSignal
	}{
		{"", nil},
		{"passed", &impact.TestSignal{Ran: true, Passed: true}},
		{"failed", &impact.TestSignal{Ran: true}},
		{"timeout", &impact.TestSignal{Ran: true, TimedOut: true}},
	}
	for _, tt := range tests {
		got, err := parseTestResult(tt.in)
		if err != nil {
			t.Fatalf("parseTestResult(%q): %v", tt.in, err)
		}
		if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
			t.Errorf("parseTestResult(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestProfile_JSON(t *testing.T) {
	repo := newFixture(t)

	stdout, _, err := run(t, "", "profile", "--root", repo.Root, "--format", "json")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	var profile impact.ProjectProfile
	if err := json.Unmarshal([]byte(stdout), &profile); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if profile.Language != "go" || profile.Posture == "" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestConfigInit(t *testing.T) {
	root := t.TempDir()

	stdout, _, err := run(t, "", "config", "init", "--root", root)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	path := filepath.Join(root, ".changeguard", "config.json")
	if !strings.Contains(stdout, path) {
		t.Errorf("stdout = %q, want it to name %s", stdout, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	if _, _, err := run(t, "", "config", "init", "--root", root); exitCode(err) != cgerrors.ExitBadInput {
		t.Errorf("second init without --force: err = %v", err)
	}
	if _, _, err := run(t, "", "config", "init", "--root", root, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}

	stdout, _, err = run(t, "", "config", "show", "--root", root)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(stdout, `"failOn": "breaking"`) {
		t.Errorf("config show output:\n%s", stdout)
	}
}

func TestVersion(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(stdout, "changeguard version ") {
		t.Errorf("stdout = %q", stdout)
	}
}
