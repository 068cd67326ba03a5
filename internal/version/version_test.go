package version

import (
	"strings"
	"testing"

	"golang.org/x/mod/semver"
)

// setBuild swaps in ldflags-style values for the duration of the test
func setBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, BuildDate
	t.Cleanup(func() { Version, Commit, BuildDate = v, c, d })
	Version, Commit, BuildDate = version, commit, date
}

func TestInfo(t *testing.T) {
	tests := []struct {
		commit string
		want   string
	}{
		{"unknown", "0.9.1"},
		{"", "0.9.1"},
		{"1234567", "0.9.1"},
		{"12345678", "0.9.1 (1234567)"},
		{"9f2c4e1b7a", "0.9.1 (9f2c4e1)"},
	}
	for _, tt := range tests {
		setBuild(t, "0.9.1", tt.commit, "unknown")
		if got := Info(); got != tt.want {
			t.Errorf("Info() with commit %q = %q, want %q", tt.commit, got, tt.want)
		}
	}
}

func TestFull(t *testing.T) {
	setBuild(t, "1.2.3", "abcdef123456", "2026-01-15")

	want := []string{
		"changeguard version 1.2.3",
		"Commit: abcdef123456",
		"Built: 2026-01-15",
	}
	if got := strings.Split(Full(), "\n"); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("Full() lines = %q, want %q", got, want)
	}
}

// SARIF's tool.driver.version carries Version as is, so it must stay plain semver.
func TestVersionIsPlainSemver(t *testing.T) {
	if strings.HasPrefix(Version, "v") {
		t.Errorf("Version %q should not carry a leading v", Version)
	}
	if !semver.IsValid("v" + Version) {
		t.Errorf("Version %q is not a semantic version", Version)
	}
}
