package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"changeguard/internal/paths"
)

// CurrentVersion is the only supported config schema version
const CurrentVersion = 1

// EnvPrefix prefixes environment overrides, e.g. CHANGEGUARD_SCAN_TIMEOUTMS
const EnvPrefix = "CHANGEGUARD"

// Config represents the complete changeguard configuration (v1 schema)
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
	Scan       ScanConfig       `json:"scan" mapstructure:"scan"`
	Visibility VisibilityConfig `json:"visibility" mapstructure:"visibility"`
	Extraction ExtractionConfig `json:"extraction" mapstructure:"extraction"`
	Report     ReportConfig     `json:"report" mapstructure:"report"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"` // human|json
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file,omitempty" mapstructure:"file"` // Appended run log, relative to the repo root
}

// ScanConfig controls the usage scan
type ScanConfig struct {
	TestGlobs        []string `json:"testGlobs" mapstructure:"testGlobs"`
	ExcludeDirs      []string `json:"excludeDirs" mapstructure:"excludeDirs"`
	ExcludeGlobs     []string `json:"excludeGlobs" mapstructure:"excludeGlobs"`
	MaxFileSizeBytes int64    `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	CandidateWorkers int      `json:"candidateWorkers" mapstructure:"candidateWorkers"`
	FileWorkers      int      `json:"fileWorkers" mapstructure:"fileWorkers"`
	MaxOpenFiles     int      `json:"maxOpenFiles" mapstructure:"maxOpenFiles"`
	TimeoutMs        int      `json:"timeoutMs" mapstructure:"timeoutMs"`         // 0 disables the budget
	SkipGenerated    bool     `json:"skipGenerated" mapstructure:"skipGenerated"` // Ignore lockfiles, vendored and generated files in the diff
}

// VisibilityConfig controls visibility resolution
type VisibilityConfig struct {
	EntryPoints  []string `json:"entryPoints" mapstructure:"entryPoints"`
	ManifestPath string   `json:"manifestPath,omitempty" mapstructure:"manifestPath"`
}

// ExtractionConfig controls candidate extraction
type ExtractionConfig struct {
	RenameOverlapThreshold float64 `json:"renameOverlapThreshold" mapstructure:"renameOverlapThreshold"`
}

// ReportConfig controls report rendering
type ReportConfig struct {
	IncludeSafe bool   `json:"includeSafe" mapstructure:"includeSafe"`
	FailOn      string `json:"failOn" mapstructure:"failOn"` // breaking|risky|never
}

// ScanTimeout returns the usage scan budget
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.Scan.TimeoutMs) * time.Millisecond
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Logging: LoggingConfig{
			Format: "human",
			Level:  "warn",
		},
		Scan: ScanConfig{
			TestGlobs: []string{
				"**/*_test.go",
				"**/test_*.py",
				"**/*_test.py",
				"**/*.test.{ts,tsx,js,jsx,mjs}",
				"**/*.spec.{ts,tsx,js,jsx,mjs}",
				"**/__tests__/**",
				"**/test/**",
				"**/tests/**",
				"**/spec/**",
				"**/*Test.{java,kt,php}",
				"**/*Tests.{java,kt,cs}",
				"**/*_spec.rb",
			},
			ExcludeDirs: []string{
				".git", ".hg", ".svn", ".changeguard", "node_modules", "vendor",
				"dist", "build", "target", "out", "coverage", ".venv", "venv", "__pycache__",
			},
			ExcludeGlobs: []string{
				"**/*.min.js",
				"**/*.min.css",
				"**/*.map",
				"**/*.lock",
				"**/*-lock.json",
				"**/*-lock.yaml",
				"**/go.sum",
			},
			MaxFileSizeBytes: 1000000,
			CandidateWorkers: 4,
			FileWorkers:      8,
			MaxOpenFiles:     64,
			TimeoutMs:        30000,
			SkipGenerated:    true,
		},
		Visibility: VisibilityConfig{
			EntryPoints: []string{
				"**/index.{ts,tsx,js,jsx,mjs,cjs}",
				"**/__init__.py",
				"**/lib.rs",
				"**/mod.rs",
			},
		},
		Extraction: ExtractionConfig{
			RenameOverlapThreshold: 0.5,
		},
		Report: ReportConfig{
			IncludeSafe: false,
			FailOn:      "breaking",
		},
	}
}

// LoadConfig loads <repoRoot>/.changeguard/config.{json,yaml,toml}.
// A missing file yields the defaults; environment overrides apply either way.
func LoadConfig(repoRoot string) (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath(paths.ConfigDir(repoRoot))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadConfigFromPath loads an explicit config file
func LoadConfigFromPath(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(*DefaultConfig()))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every leaf of the default config so that environment
// overrides reach keys the file does not mention.
func setDefaults(v *viper.Viper, prefix string, rv reflect.Value) {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		key := rt.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		field := rv.Field(i)
		if field.Kind() == reflect.Struct {
			setDefaults(v, key, field)
			continue
		}
		v.SetDefault(key, field.Interface())
	}
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to .changeguard/config.json
func (c *Config) Save(repoRoot string) (string, error) {
	dir, err := paths.EnsureConfigDir(repoRoot)
	if err != nil {
		return "", err
	}
	configPath := filepath.Join(dir, paths.ConfigFileName)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(configPath, append(data, '\n'), 0644); err != nil {
		return "", err
	}
	return configPath, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q (want human or json)", c.Logging.Format)}
	}

	positive := []struct {
		field string
		value int64
	}{
		{"scan.candidateWorkers", int64(c.Scan.CandidateWorkers)},
		{"scan.fileWorkers", int64(c.Scan.FileWorkers)},
		{"scan.maxOpenFiles", int64(c.Scan.MaxOpenFiles)},
		{"scan.maxFileSizeBytes", c.Scan.MaxFileSizeBytes},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return &ConfigError{Field: p.field, Message: "must be positive"}
		}
	}
	if c.Scan.TimeoutMs < 0 {
		return &ConfigError{Field: "scan.timeoutMs", Message: "must not be negative"}
	}

	globs := []struct {
		field    string
		patterns []string
	}{
		{"scan.testGlobs", c.Scan.TestGlobs},
		{"scan.excludeGlobs", c.Scan.ExcludeGlobs},
		{"visibility.entryPoints", c.Visibility.EntryPoints},
	}
	for _, g := range globs {
		if _, err := paths.CompileGlobs(g.patterns); err != nil {
			return &ConfigError{Field: g.field, Message: err.Error()}
		}
	}

	if t := c.Extraction.RenameOverlapThreshold; t <= 0 || t > 1 {
		return &ConfigError{Field: "extraction.renameOverlapThreshold", Message: "must be in (0, 1]"}
	}

	switch c.Report.FailOn {
	case "breaking", "risky", "never":
	default:
		return &ConfigError{Field: "report.failOn", Message: fmt.Sprintf("unknown threshold %q (want breaking, risky or never)", c.Report.FailOn)}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
