// Package config loads the application's configuration, layering
// hardcoded defaults, an optional YAML file, and BPOMVERIFY_*
// environment variable overrides, in that order of increasing
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	verrors "github.com/bpomverify/bpomverify/internal/errors"
)

// Config is the complete application configuration. It mirrors the
// schema in spec.md Section 6 ("Configuration (environment-driven)").
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Indexing IndexingConfig `yaml:"indexing" json:"indexing"`
	Scan     ScanConfig     `yaml:"scan" json:"scan"`
	Router   RouterConfig   `yaml:"router" json:"router"`
	Detector DetectorConfig `yaml:"detector" json:"detector"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// IndexingConfig configures the Vector Index Builder.
type IndexingConfig struct {
	// BatchSize is how many product texts are embedded per provider call.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// TrainSamples is the training-sample target before a quantized
	// index is fit.
	TrainSamples int `yaml:"train_samples" json:"train_samples"`
	// Subquantizers is the PQ subvector split count (M).
	Subquantizers int `yaml:"subquantizers" json:"subquantizers"`
	// NlistMax caps the number of IVF coarse clusters.
	NlistMax int `yaml:"nlist_max" json:"nlist_max"`
	// Nprobe is the number of coarse lists visited per search.
	Nprobe int `yaml:"nprobe" json:"nprobe"`
	// ForceFlat pins the index to flat mode regardless of corpus size.
	ForceFlat bool `yaml:"force_flat" json:"force_flat"`
	// Dimensions is the embedding vector width.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// IndexPath is where the built index is persisted on disk.
	IndexPath string `yaml:"index_path" json:"index_path"`
}

// ScanConfig configures the Scan Pipeline's T1/T2 race.
type ScanConfig struct {
	// T1TimeoutMS is the title/OCR+router deadline in milliseconds.
	T1TimeoutMS int `yaml:"t1_timeout_ms" json:"t1_timeout_ms"`
	// T2TimeoutMS is the full-frame OCR+regex deadline in milliseconds.
	T2TimeoutMS int `yaml:"t2_timeout_ms" json:"t2_timeout_ms"`
	// RegexGate is the title detection confidence at or above which T2's
	// regex extraction runs.
	RegexGate float64 `yaml:"regex_gate" json:"regex_gate"`
	// AlwaysRunRegex disables the gate entirely.
	AlwaysRunRegex bool `yaml:"always_run_regex" json:"always_run_regex"`
	// OCREngine selects the OCR backend: "a" or "b" (see internal/ocrport).
	OCREngine string `yaml:"ocr_engine" json:"ocr_engine"`
}

// RouterConfig configures the Retrieval Router.
type RouterConfig struct {
	// AtlasLexIndexName names the lexical index to query, if the
	// registry backend supports multiple named indexes.
	AtlasLexIndexName string `yaml:"atlas_lex_index_name" json:"atlas_lex_index_name"`
	// DisableVector forces the vector tier off regardless of gating.
	DisableVector bool `yaml:"disable_vector" json:"disable_vector"`
}

// DetectorConfig configures the object-detector port.
type DetectorConfig struct {
	// TitleClassID identifies the detected box class considered the
	// product title.
	TitleClassID int `yaml:"title_class_id" json:"title_class_id"`
	// TitleClassName is the human-readable class label.
	TitleClassName string `yaml:"title_class_name" json:"title_class_name"`
	// ImageSize is the square input resolution fed to the detector.
	ImageSize int `yaml:"image_size" json:"image_size"`
	// WeightsPath points at the detector's model weights file.
	WeightsPath string `yaml:"weights_path" json:"weights_path"`
}

// RegistryConfig configures the registry's storage backend.
type RegistryConfig struct {
	// DSN is the registry database connection string.
	DSN string `yaml:"dsn" json:"dsn"`
	// RegexTaxonomyPath points at the regex code taxonomy YAML file;
	// empty uses the built-in defaults.
	RegexTaxonomyPath string `yaml:"regex_taxonomy_path" json:"regex_taxonomy_path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level         string `yaml:"level" json:"level"`
	FilePath      string `yaml:"file_path" json:"file_path"`
	MaxSizeMB     int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles      int    `yaml:"max_files" json:"max_files"`
	WriteToStderr bool   `yaml:"write_to_stderr" json:"write_to_stderr"`
}

// NewConfig returns a Config populated with spec.md §6's documented
// defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			BatchSize:     512,
			TrainSamples:  20000,
			Subquantizers: 16,
			NlistMax:      4096,
			Nprobe:        16,
			ForceFlat:     false,
			Dimensions:    1536,
			IndexPath:     defaultIndexPath(),
		},
		Scan: ScanConfig{
			T1TimeoutMS:    500,
			T2TimeoutMS:    1200,
			RegexGate:      0.70,
			AlwaysRunRegex: false,
			OCREngine:      "a",
		},
		Router: RouterConfig{
			AtlasLexIndexName: "",
			DisableVector:     false,
		},
		Detector: DetectorConfig{
			TitleClassID:   1,
			TitleClassName: "title",
			ImageSize:      640,
			WeightsPath:    "",
		},
		Registry: RegistryConfig{
			DSN:               defaultRegistryDSN(),
			RegexTaxonomyPath: "",
		},
		Logging: LoggingConfig{
			Level:         "info",
			FilePath:      defaultLogPath(),
			MaxSizeMB:     50,
			MaxFiles:      5,
			WriteToStderr: false,
		},
	}
}

func defaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".bpomverify", "vectors.idx")
	}
	return filepath.Join(home, ".bpomverify", "vectors.idx")
}

func defaultRegistryDSN() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".bpomverify", "registry.db")
	}
	return filepath.Join(home, ".bpomverify", "registry.db")
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".bpomverify", "logs", "bpomverify.log")
	}
	return filepath.Join(home, ".bpomverify", "logs", "bpomverify.log")
}

// GetUserConfigPath returns the path to the user/global configuration
// file, following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "bpomverify", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "bpomverify", "config.yaml")
	}
	return filepath.Join(home, ".config", "bpomverify", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if present.
// A missing file is not an error.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid,
			fmt.Sprintf("load user config from %s", configPath), err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory, applying
// overrides in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/bpomverify/config.yaml)
//  3. Project config (.bpomverify.yaml in dir)
//  4. Environment variables (BPOMVERIFY_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "validate configuration", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load .bpomverify.yaml or .bpomverify.yml
// from dir. A missing file is not an error.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".bpomverify.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".bpomverify.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return verrors.New(verrors.ErrCodeConfigNotFound, fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return verrors.New(verrors.ErrCodeConfigInvalid, fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Indexing.BatchSize != 0 {
		c.Indexing.BatchSize = other.Indexing.BatchSize
	}
	if other.Indexing.TrainSamples != 0 {
		c.Indexing.TrainSamples = other.Indexing.TrainSamples
	}
	if other.Indexing.Subquantizers != 0 {
		c.Indexing.Subquantizers = other.Indexing.Subquantizers
	}
	if other.Indexing.NlistMax != 0 {
		c.Indexing.NlistMax = other.Indexing.NlistMax
	}
	if other.Indexing.Nprobe != 0 {
		c.Indexing.Nprobe = other.Indexing.Nprobe
	}
	if other.Indexing.ForceFlat {
		c.Indexing.ForceFlat = other.Indexing.ForceFlat
	}
	if other.Indexing.Dimensions != 0 {
		c.Indexing.Dimensions = other.Indexing.Dimensions
	}
	if other.Indexing.IndexPath != "" {
		c.Indexing.IndexPath = other.Indexing.IndexPath
	}

	if other.Scan.T1TimeoutMS != 0 {
		c.Scan.T1TimeoutMS = other.Scan.T1TimeoutMS
	}
	if other.Scan.T2TimeoutMS != 0 {
		c.Scan.T2TimeoutMS = other.Scan.T2TimeoutMS
	}
	if other.Scan.RegexGate != 0 {
		c.Scan.RegexGate = other.Scan.RegexGate
	}
	if other.Scan.AlwaysRunRegex {
		c.Scan.AlwaysRunRegex = other.Scan.AlwaysRunRegex
	}
	if other.Scan.OCREngine != "" {
		c.Scan.OCREngine = other.Scan.OCREngine
	}

	if other.Router.AtlasLexIndexName != "" {
		c.Router.AtlasLexIndexName = other.Router.AtlasLexIndexName
	}
	if other.Router.DisableVector {
		c.Router.DisableVector = other.Router.DisableVector
	}

	if other.Detector.TitleClassID != 0 {
		c.Detector.TitleClassID = other.Detector.TitleClassID
	}
	if other.Detector.TitleClassName != "" {
		c.Detector.TitleClassName = other.Detector.TitleClassName
	}
	if other.Detector.ImageSize != 0 {
		c.Detector.ImageSize = other.Detector.ImageSize
	}
	if other.Detector.WeightsPath != "" {
		c.Detector.WeightsPath = other.Detector.WeightsPath
	}

	if other.Registry.DSN != "" {
		c.Registry.DSN = other.Registry.DSN
	}
	if other.Registry.RegexTaxonomyPath != "" {
		c.Registry.RegexTaxonomyPath = other.Registry.RegexTaxonomyPath
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.FilePath != "" {
		c.Logging.FilePath = other.Logging.FilePath
	}
	if other.Logging.MaxSizeMB != 0 {
		c.Logging.MaxSizeMB = other.Logging.MaxSizeMB
	}
	if other.Logging.MaxFiles != 0 {
		c.Logging.MaxFiles = other.Logging.MaxFiles
	}
	if other.Logging.WriteToStderr {
		c.Logging.WriteToStderr = other.Logging.WriteToStderr
	}
}

// applyEnvOverrides applies BPOMVERIFY_* environment variable overrides,
// the highest-precedence configuration layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BPOMVERIFY_INDEX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.BatchSize = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_TRAIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.TrainSamples = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_SUBQUANTIZERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Subquantizers = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_NLIST_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.NlistMax = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_NPROBE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Nprobe = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_FORCE_FLAT"); v != "" {
		c.Indexing.ForceFlat = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Dimensions = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_INDEX_PATH"); v != "" {
		c.Indexing.IndexPath = v
	}

	if v := os.Getenv("BPOMVERIFY_T1_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scan.T1TimeoutMS = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_T2_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Scan.T2TimeoutMS = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_REGEX_GATE"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Scan.RegexGate = f
		}
	}
	if v := os.Getenv("BPOMVERIFY_ALWAYS_RUN_REGEX"); v != "" {
		c.Scan.AlwaysRunRegex = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("BPOMVERIFY_OCR_ENGINE"); v != "" {
		c.Scan.OCREngine = v
	}

	if v := os.Getenv("BPOMVERIFY_ATLAS_LEX_INDEX_NAME"); v != "" {
		c.Router.AtlasLexIndexName = v
	}
	if v := os.Getenv("BPOMVERIFY_DISABLE_VECTOR"); v != "" {
		c.Router.DisableVector = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("BPOMVERIFY_TITLE_CLASS_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Detector.TitleClassID = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_TITLE_CLASS_NAME"); v != "" {
		c.Detector.TitleClassName = v
	}
	if v := os.Getenv("BPOMVERIFY_IMAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Detector.ImageSize = n
		}
	}
	if v := os.Getenv("BPOMVERIFY_WEIGHTS_PATH"); v != "" {
		c.Detector.WeightsPath = v
	}

	if v := os.Getenv("BPOMVERIFY_REGISTRY_DSN"); v != "" {
		c.Registry.DSN = v
	}
	if v := os.Getenv("BPOMVERIFY_REGEX_TAXONOMY_PATH"); v != "" {
		c.Registry.RegexTaxonomyPath = v
	}

	if v := os.Getenv("BPOMVERIFY_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BPOMVERIFY_LOG_FILE"); v != "" {
		c.Logging.FilePath = v
	}
}

// parseFloat64 parses a string to float64.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate returns an error if the configuration is internally
// inconsistent.
func (c *Config) Validate() error {
	if c.Scan.RegexGate < 0 || c.Scan.RegexGate > 1 {
		return fmt.Errorf("scan.regex_gate must be between 0 and 1, got %f", c.Scan.RegexGate)
	}
	if c.Scan.T1TimeoutMS <= 0 {
		return fmt.Errorf("scan.t1_timeout_ms must be positive, got %d", c.Scan.T1TimeoutMS)
	}
	if c.Scan.T2TimeoutMS < c.Scan.T1TimeoutMS {
		return fmt.Errorf("scan.t2_timeout_ms (%d) must be >= t1_timeout_ms (%d)", c.Scan.T2TimeoutMS, c.Scan.T1TimeoutMS)
	}

	validEngines := map[string]bool{"a": true, "b": true}
	if !validEngines[strings.ToLower(c.Scan.OCREngine)] {
		return fmt.Errorf("scan.ocr_engine must be 'a' or 'b', got %s", c.Scan.OCREngine)
	}

	if c.Indexing.Dimensions <= 0 {
		return fmt.Errorf("indexing.dimensions must be positive, got %d", c.Indexing.Dimensions)
	}
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return verrors.New(verrors.ErrCodeConfigInvalid, "marshal configuration", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return verrors.New(verrors.ErrCodeConfigPermission, fmt.Sprintf("write config file %s", path), err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file, if one exists.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// ScanTimeouts converts the millisecond-denominated scan timeouts into
// time.Duration, the unit internal/scanpipeline.Config expects.
func (c ScanConfig) ScanTimeouts() (t1, t2 time.Duration) {
	return time.Duration(c.T1TimeoutMS) * time.Millisecond, time.Duration(c.T2TimeoutMS) * time.Millisecond
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
