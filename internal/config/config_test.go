package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// AC01: Default Configuration Tests
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 512, cfg.Indexing.BatchSize)
	assert.Equal(t, 20000, cfg.Indexing.TrainSamples)
	assert.Equal(t, 16, cfg.Indexing.Subquantizers)
	assert.Equal(t, 4096, cfg.Indexing.NlistMax)
	assert.Equal(t, 16, cfg.Indexing.Nprobe)
	assert.False(t, cfg.Indexing.ForceFlat)
	assert.Equal(t, 1536, cfg.Indexing.Dimensions)
	assert.NotEmpty(t, cfg.Indexing.IndexPath)

	assert.Equal(t, 500, cfg.Scan.T1TimeoutMS)
	assert.Equal(t, 1200, cfg.Scan.T2TimeoutMS)
	assert.Equal(t, 0.70, cfg.Scan.RegexGate)
	assert.False(t, cfg.Scan.AlwaysRunRegex)
	assert.Equal(t, "a", cfg.Scan.OCREngine)

	assert.Equal(t, "", cfg.Router.AtlasLexIndexName)
	assert.False(t, cfg.Router.DisableVector)

	assert.Equal(t, 1, cfg.Detector.TitleClassID)
	assert.Equal(t, "title", cfg.Detector.TitleClassName)
	assert.Equal(t, 640, cfg.Detector.ImageSize)

	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfig_VersionDefaultsToOne(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.Version)
}

// =============================================================================
// AC02: Configuration File Loading Tests
// =============================================================================

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 500, cfg.Scan.T1TimeoutMS)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
scan:
  t1_timeout_ms: 700
  t2_timeout_ms: 1500
  regex_gate: 0.8
indexing:
  batch_size: 256
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 700, cfg.Scan.T1TimeoutMS)
	assert.Equal(t, 1500, cfg.Scan.T2TimeoutMS)
	assert.Equal(t, 0.8, cfg.Scan.RegexGate)
	assert.Equal(t, 256, cfg.Indexing.BatchSize)
}

func TestLoad_YmlExtension_IsRecognized(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
router:
  disable_vector: true
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.True(t, cfg.Router.DisableVector)
}

func TestLoad_YamlPreferredOverYml(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := `
version: 1
scan:
  ocr_engine: b
`
	ymlContent := `
version: 1
scan:
  ocr_engine: a
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "b", cfg.Scan.OCREngine)
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
scan:
  regex_gate: [invalid yaml syntax
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidFieldType_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := `
version: 1
indexing:
  batch_size: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_ScanGateOutOfRange_FailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
scan:
  regex_gate: 1.5
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}

// =============================================================================
// AC05: Environment Variable Override Tests
// =============================================================================

func TestLoad_EnvVarOverridesOCREngine(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
scan:
  ocr_engine: a
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("BPOMVERIFY_OCR_ENGINE", "b")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "b", cfg.Scan.OCREngine)
}

func TestLoad_EnvVarOverridesLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("BPOMVERIFY_LOG_LEVEL", "debug")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_EnvVarOverridesRegexGate(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
scan:
  regex_gate: 0.9
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)
	t.Setenv("BPOMVERIFY_REGEX_GATE", "0.5")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Scan.RegexGate)
}

func TestLoad_EnvVarOverridesForceFlat(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("BPOMVERIFY_INDEX_FORCE_FLAT", "true")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.True(t, cfg.Indexing.ForceFlat)
}

func TestLoad_EnvVarEmptyString_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("BPOMVERIFY_OCR_ENGINE", "")

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, "a", cfg.Scan.OCREngine)
}

// =============================================================================
// AC06: User/Global Configuration Tests
// =============================================================================

func TestGetUserConfigPath_DefaultsToXDGLocation(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")

	path := GetUserConfigPath()

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	expected := filepath.Join(home, ".config", "bpomverify", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	customConfig := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	path := GetUserConfigPath()

	expected := filepath.Join(customConfig, "bpomverify", "config.yaml")
	assert.Equal(t, expected, path)
}

func TestGetUserConfigDir_ReturnsParentOfConfigPath(t *testing.T) {
	dir := GetUserConfigDir()
	path := GetUserConfigPath()

	assert.Equal(t, filepath.Dir(path), dir)
}

func TestUserConfigExists_ReturnsFalseWhenMissing(t *testing.T) {
	emptyDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", emptyDir)

	assert.False(t, UserConfigExists())
}

func TestUserConfigExists_ReturnsTrueWhenPresent(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	appDir := filepath.Join(configDir, "bpomverify")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	configPath := filepath.Join(appDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("version: 1"), 0o644))

	assert.True(t, UserConfigExists())
}

func TestLoad_UserConfigOverridesDefaults(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	appDir := filepath.Join(configDir, "bpomverify")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	userConfig := `
version: 1
registry:
  dsn: /custom/registry.db
`
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.yaml"), []byte(userConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "/custom/registry.db", cfg.Registry.DSN)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	appDir := filepath.Join(configDir, "bpomverify")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	userConfig := `
version: 1
scan:
  ocr_engine: b
  regex_gate: 0.6
`
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := `
version: 1
scan:
  regex_gate: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".bpomverify.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Scan.RegexGate)
	// User config's OCR engine is still used (not overridden by project)
	assert.Equal(t, "b", cfg.Scan.OCREngine)
}

func TestLoad_EnvVarOverridesUserAndProjectConfig(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("BPOMVERIFY_OCR_ENGINE", "b")

	appDir := filepath.Join(configDir, "bpomverify")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	userConfig := `
version: 1
scan:
  ocr_engine: a
`
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.yaml"), []byte(userConfig), 0o644))

	projectConfig := `
version: 1
scan:
  ocr_engine: a
`
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, ".bpomverify.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)

	require.NoError(t, err)
	assert.Equal(t, "b", cfg.Scan.OCREngine)
}

func TestLoad_InvalidUserConfig_ReturnsError(t *testing.T) {
	configDir := t.TempDir()
	projectDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	appDir := filepath.Join(configDir, "bpomverify")
	require.NoError(t, os.MkdirAll(appDir, 0o755))
	invalidConfig := `
version: 1
scan:
  ocr_engine: [invalid yaml
`
	require.NoError(t, os.WriteFile(filepath.Join(appDir, "config.yaml"), []byte(invalidConfig), 0o644))

	cfg, err := Load(projectDir)

	require.Error(t, err)
	assert.Nil(t, cfg)
}

// =============================================================================
// ScanTimeouts conversion
// =============================================================================

func TestScanConfig_ScanTimeouts_ConvertsMillisecondsToDuration(t *testing.T) {
	cfg := NewConfig()
	t1, t2 := cfg.Scan.ScanTimeouts()

	assert.Equal(t, int64(500), t1.Milliseconds())
	assert.Equal(t, int64(1200), t2.Milliseconds())
}
