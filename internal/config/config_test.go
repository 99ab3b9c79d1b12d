package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Build.ManifestPath != "Cargo.toml" {
		t.Errorf("ManifestPath = %q, want Cargo.toml", cfg.Build.ManifestPath)
	}
	if cfg.Build.CargoBinary != "cargo" {
		t.Errorf("CargoBinary = %q, want cargo", cfg.Build.CargoBinary)
	}
	if cfg.Graph.OptBinary != "opt" {
		t.Errorf("OptBinary = %q, want opt", cfg.Graph.OptBinary)
	}
	if cfg.Report.Format != "text" {
		t.Errorf("Report.Format = %q, want text", cfg.Report.Format)
	}
	if !cfg.Report.Witness {
		t.Error("witness paths should be reported by default")
	}
	if cfg.Build.IncludeTests {
		t.Error("tests should be excluded by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		field   string
	}{
		{"defaults", func(*Config) {}, false, ""},
		{"bad version", func(c *Config) { c.Version = 99 }, true, "version"},
		{"bad format", func(c *Config) { c.Report.Format = "xml" }, true, "report.format"},
		{"bad color", func(c *Config) { c.Build.Color = "sometimes" }, true, "build.color"},
		{"negative jobs", func(c *Config) { c.Build.Jobs = -1 }, true, "build.jobs"},
		{"empty cargo", func(c *Config) { c.Build.CargoBinary = "" }, true, "build.cargoBinary"},
		{"no opt without artifact", func(c *Config) { c.Graph.OptBinary = "" }, true, "graph.optBinary"},
		{"no opt with artifact", func(c *Config) {
			c.Graph.OptBinary = ""
			c.Graph.Artifact = "callgraph.dot"
		}, false, ""},
		{"sarif format", func(c *Config) { c.Report.Format = "sarif" }, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				cerr, ok := err.(*ConfigError)
				if !ok {
					t.Fatalf("error type = %T, want *ConfigError", err)
				}
				if cerr.Field != tt.field {
					t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
				}
			}
		})
	}
}

func TestConfig_ValidateFrozenImpliesLocked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Build.Frozen = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if !cfg.Build.Locked {
		t.Error("frozen should imply locked")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir, "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if cfg.Graph.OptBinary != "opt" {
		t.Errorf("OptBinary = %q, want opt", cfg.Graph.OptBinary)
	}
}

func TestLoadConfig_ExplicitMissingFileFails(t *testing.T) {
	_, err := LoadConfig("", filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config file")
	}
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `version = 1

[build]
features = ["std", "alloc"]
includeTests = true
jobs = 3

[graph]
crateName = "my_crate"

[report]
format = "json"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(dir, "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.Build.Features) != 2 || cfg.Build.Features[0] != "std" {
		t.Errorf("Features = %v, want [std alloc]", cfg.Build.Features)
	}
	if !cfg.Build.IncludeTests {
		t.Error("IncludeTests should be true")
	}
	if cfg.Build.Jobs != 3 {
		t.Errorf("Jobs = %d, want 3", cfg.Build.Jobs)
	}
	if cfg.Graph.CrateName != "my_crate" {
		t.Errorf("CrateName = %q, want my_crate", cfg.Graph.CrateName)
	}
	if cfg.Report.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Report.Format)
	}
	// untouched keys keep defaults
	if cfg.Build.CargoBinary != "cargo" {
		t.Errorf("CargoBinary = %q, want cargo", cfg.Build.CargoBinary)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("UNSAFEGRAPH_BUILD_JOBS", "7")
	t.Setenv("UNSAFEGRAPH_GRAPH_OPTBINARY", "opt-18")

	cfg, err := LoadConfig(t.TempDir(), "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Build.Jobs != 7 {
		t.Errorf("Jobs = %d, want 7", cfg.Build.Jobs)
	}
	if cfg.Graph.OptBinary != "opt-18" {
		t.Errorf("OptBinary = %q, want opt-18", cfg.Graph.OptBinary)
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", FileName)

	cfg := DefaultConfig()
	cfg.Build.Features = []string{"simd"}
	cfg.Graph.CrateName = "roundtrip"
	cfg.Logging.Subsystems = map[string]string{"scanner": "debug"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadConfig("", path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Graph.CrateName != "roundtrip" {
		t.Errorf("CrateName = %q, want roundtrip", loaded.Graph.CrateName)
	}
	if len(loaded.Build.Features) != 1 || loaded.Build.Features[0] != "simd" {
		t.Errorf("Features = %v, want [simd]", loaded.Build.Features)
	}
	if loaded.Logging.Subsystems["scanner"] != "debug" {
		t.Errorf("Subsystems = %v, want scanner=debug", loaded.Logging.Subsystems)
	}
}
