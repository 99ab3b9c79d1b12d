package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// FileName is the base name of the configuration file looked up next to the
// audited manifest.
const FileName = "unsafegraph.toml"

// EnvPrefix prefixes environment overrides, e.g. UNSAFEGRAPH_BUILD_JOBS=4.
const EnvPrefix = "UNSAFEGRAPH"

// CurrentVersion is the configuration schema version.
const CurrentVersion = 1

// Config represents the complete unsafegraph configuration
type Config struct {
	Version int `json:"version" mapstructure:"version" toml:"version"`

	Build   BuildConfig   `json:"build" mapstructure:"build" toml:"build"`
	Graph   GraphConfig   `json:"graph" mapstructure:"graph" toml:"graph"`
	Report  ReportConfig  `json:"report" mapstructure:"report" toml:"report"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging" toml:"logging"`
}

// BuildConfig selects the build configuration whose files are audited
type BuildConfig struct {
	ManifestPath      string   `json:"manifestPath" mapstructure:"manifestPath" toml:"manifestPath"`
	Features          []string `json:"features" mapstructure:"features" toml:"features"`
	AllFeatures       bool     `json:"allFeatures" mapstructure:"allFeatures" toml:"allFeatures"`
	NoDefaultFeatures bool     `json:"noDefaultFeatures" mapstructure:"noDefaultFeatures" toml:"noDefaultFeatures"`
	IncludeTests      bool     `json:"includeTests" mapstructure:"includeTests" toml:"includeTests"`
	TargetFilters     []string `json:"targetFilters" mapstructure:"targetFilters" toml:"targetFilters"`
	Target            string   `json:"target" mapstructure:"target" toml:"target"`
	Jobs              int      `json:"jobs" mapstructure:"jobs" toml:"jobs"`
	Frozen            bool     `json:"frozen" mapstructure:"frozen" toml:"frozen"`
	Locked            bool     `json:"locked" mapstructure:"locked" toml:"locked"`
	Color             string   `json:"color" mapstructure:"color" toml:"color"`
	UnstableFlags     []string `json:"unstableFlags" mapstructure:"unstableFlags" toml:"unstableFlags"`
	CargoBinary       string   `json:"cargoBinary" mapstructure:"cargoBinary" toml:"cargoBinary"`
}

// GraphConfig controls call-graph extraction and artifact lookup
type GraphConfig struct {
	CrateName   string `json:"crateName" mapstructure:"crateName" toml:"crateName"`
	Artifact    string `json:"artifact" mapstructure:"artifact" toml:"artifact"`
	ArtifactDir string `json:"artifactDir" mapstructure:"artifactDir" toml:"artifactDir"`
	OptBinary   string `json:"optBinary" mapstructure:"optBinary" toml:"optBinary"`
	SkipBuild   bool   `json:"skipBuild" mapstructure:"skipBuild" toml:"skipBuild"`
	Clean       bool   `json:"clean" mapstructure:"clean" toml:"clean"`
}

// ReportConfig controls output rendering and handoff artifacts
type ReportConfig struct {
	Format            string `json:"format" mapstructure:"format" toml:"format"`
	Output            string `json:"output" mapstructure:"output" toml:"output"`
	Witness           bool   `json:"witness" mapstructure:"witness" toml:"witness"`
	FindingsArtifact  string `json:"findingsArtifact" mapstructure:"findingsArtifact" toml:"findingsArtifact"`
	CompressArtifacts bool   `json:"compressArtifacts" mapstructure:"compressArtifacts" toml:"compressArtifacts"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" mapstructure:"level" toml:"level"`
	File       string            `json:"file" mapstructure:"file" toml:"file"`
	MaxSizeMB  int               `json:"maxSizeMB" mapstructure:"maxSizeMB" toml:"maxSizeMB"`
	MaxBackups int               `json:"maxBackups" mapstructure:"maxBackups" toml:"maxBackups"`
	MaxAgeDays int               `json:"maxAgeDays" mapstructure:"maxAgeDays" toml:"maxAgeDays"`
	Compress   bool              `json:"compress" mapstructure:"compress" toml:"compress"`
	Subsystems map[string]string `json:"subsystems" mapstructure:"subsystems" toml:"subsystems"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Build: BuildConfig{
			ManifestPath:  "Cargo.toml",
			Features:      []string{},
			TargetFilters: []string{},
			UnstableFlags: []string{},
			CargoBinary:   "cargo",
		},
		Graph: GraphConfig{
			OptBinary: "opt",
		},
		Report: ReportConfig{
			Format:           "text",
			Witness:          true,
			FindingsArtifact: "findings.json",
		},
		Logging: LoggingConfig{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Subsystems: map[string]string{},
		},
	}
}

// LoadConfig loads configuration from path, or from unsafegraph.toml in dir
// when path is empty. A missing file yields the defaults; environment
// variables prefixed with UNSAFEGRAPH_ override file values.
func LoadConfig(dir, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, &ConfigError{Field: "file", Message: err.Error()}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Field: "file", Message: err.Error()}
	}
	if cfg.Logging.Subsystems == nil {
		cfg.Logging.Subsystems = map[string]string{}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)

	v.SetDefault("build.manifestPath", d.Build.ManifestPath)
	v.SetDefault("build.features", d.Build.Features)
	v.SetDefault("build.allFeatures", d.Build.AllFeatures)
	v.SetDefault("build.noDefaultFeatures", d.Build.NoDefaultFeatures)
	v.SetDefault("build.includeTests", d.Build.IncludeTests)
	v.SetDefault("build.targetFilters", d.Build.TargetFilters)
	v.SetDefault("build.target", d.Build.Target)
	v.SetDefault("build.jobs", d.Build.Jobs)
	v.SetDefault("build.frozen", d.Build.Frozen)
	v.SetDefault("build.locked", d.Build.Locked)
	v.SetDefault("build.color", d.Build.Color)
	v.SetDefault("build.unstableFlags", d.Build.UnstableFlags)
	v.SetDefault("build.cargoBinary", d.Build.CargoBinary)

	v.SetDefault("graph.crateName", d.Graph.CrateName)
	v.SetDefault("graph.artifact", d.Graph.Artifact)
	v.SetDefault("graph.artifactDir", d.Graph.ArtifactDir)
	v.SetDefault("graph.optBinary", d.Graph.OptBinary)
	v.SetDefault("graph.skipBuild", d.Graph.SkipBuild)
	v.SetDefault("graph.clean", d.Graph.Clean)

	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.output", d.Report.Output)
	v.SetDefault("report.witness", d.Report.Witness)
	v.SetDefault("report.findingsArtifact", d.Report.FindingsArtifact)
	v.SetDefault("report.compressArtifacts", d.Report.CompressArtifacts)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.maxSizeMB", d.Logging.MaxSizeMB)
	v.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
	v.SetDefault("logging.maxAgeDays", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

// Save writes the configuration as TOML to path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return toml.NewEncoder(f).Encode(c)
}

var validFormats = map[string]bool{
	"text":  true,
	"human": true,
	"json":  true,
	"yaml":  true,
	"sarif": true,
}

var validColors = map[string]bool{
	"":       true,
	"auto":   true,
	"always": true,
	"never":  true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if !validFormats[c.Report.Format] {
		return &ConfigError{Field: "report.format", Message: "unknown format " + c.Report.Format}
	}
	if !validColors[c.Build.Color] {
		return &ConfigError{Field: "build.color", Message: "expected auto, always or never"}
	}
	if c.Build.Jobs < 0 {
		return &ConfigError{Field: "build.jobs", Message: "must not be negative"}
	}
	if c.Build.Frozen && !c.Build.Locked {
		// cargo implies --locked from --frozen; keep the two consistent
		c.Build.Locked = true
	}
	if c.Build.CargoBinary == "" {
		return &ConfigError{Field: "build.cargoBinary", Message: "must not be empty"}
	}
	if !c.Graph.SkipBuild && c.Graph.Artifact == "" && c.Graph.OptBinary == "" {
		return &ConfigError{Field: "graph.optBinary", Message: "required unless an artifact is given or the build is skipped"}
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
