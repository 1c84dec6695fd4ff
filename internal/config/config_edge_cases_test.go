package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonMarshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Edge Case Tests - scenarios that could cause silent failures or
// unexpected behavior.

// =============================================================================
// Config Merge Edge Cases
// =============================================================================

// TestLoad_ZeroValuesNotMerged tests that explicit zero values in a YAML
// config don't override the hardcoded defaults.
func TestLoad_ZeroValuesNotMerged(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
indexing:
  batch_size: 0
  dimensions: 0
scan:
  t1_timeout_ms: 0
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Indexing.BatchSize, "zero should not override default batch_size")
	assert.Equal(t, 1536, cfg.Indexing.Dimensions, "zero should not override default dimensions")
	assert.Equal(t, 500, cfg.Scan.T1TimeoutMS, "zero should not override default t1_timeout_ms")
}

// TestLoad_NegativeValues_Validated tests that validation rejects a
// negative or out-of-range field reachable from YAML.
func TestLoad_NegativeValues_Validated(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
version: 1
scan:
  regex_gate: -0.1
`
	err := os.WriteFile(filepath.Join(tmpDir, ".bpomverify.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)

	require.Error(t, err)
	require.Nil(t, cfg)
}

// TestValidate_T2BelowT1_ReturnsError tests that a t2 deadline shorter
// than t1 is rejected, since T2's window is t2-t1 in the race.
func TestValidate_T2BelowT1_ReturnsError(t *testing.T) {
	cfg := NewConfig()
	cfg.Scan.T1TimeoutMS = 1000
	cfg.Scan.T2TimeoutMS = 500

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "t2_timeout_ms")
}

// TestValidate_UnknownOCREngine_ReturnsError tests that an OCR engine
// selector outside {a, b} fails validation.
func TestValidate_UnknownOCREngine_ReturnsError(t *testing.T) {
	cfg := NewConfig()
	cfg.Scan.OCREngine = "c"

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr_engine")
}

// =============================================================================
// Config File Permission Edge Cases
// =============================================================================

// TestLoad_UnreadableConfigFile_ReturnsError tests that unreadable config
// files return an error.
func TestLoad_UnreadableConfigFile_ReturnsError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("Test requires non-root user")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".bpomverify.yaml")
	err := os.WriteFile(configPath, []byte("version: 1"), 0o000)
	require.NoError(t, err)
	defer func() { _ = os.Chmod(configPath, 0o644) }()

	cfg, err := Load(tmpDir)

	require.Error(t, err, "Load should fail for unreadable config file")
	assert.Nil(t, cfg)
}

// =============================================================================
// Config JSON Marshaling Edge Cases
// =============================================================================

// TestConfig_JSON_RoundTrip tests that config can be marshaled to JSON
// and back without data loss for JSON-accessible fields.
func TestConfig_JSON_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Indexing.Dimensions = 768
	cfg.Scan.RegexGate = 0.42
	cfg.Detector.WeightsPath = "/models/detector.onnx"

	data, err := jsonMarshal(cfg)
	require.NoError(t, err)

	var parsed Config
	err = jsonUnmarshal(data, &parsed)
	require.NoError(t, err)

	assert.Equal(t, 768, parsed.Indexing.Dimensions)
	assert.Equal(t, 0.42, parsed.Scan.RegexGate)
	assert.Equal(t, "/models/detector.onnx", parsed.Detector.WeightsPath)
}

// TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError tests that invalid JSON
// returns an error.
func TestConfig_UnmarshalJSON_InvalidJSON_ReturnsError(t *testing.T) {
	invalidJSON := []byte("{invalid json")

	var cfg Config
	err := jsonUnmarshal(invalidJSON, &cfg)

	require.Error(t, err, "Unmarshal should fail for invalid JSON")
}

// =============================================================================
// Default Path Edge Cases
// =============================================================================

// TestNewConfig_IndexPath_UsesHomeDir tests that the default index path
// lives under the home directory.
func TestNewConfig_IndexPath_UsesHomeDir(t *testing.T) {
	cfg := NewConfig()

	assert.NotEmpty(t, cfg.Indexing.IndexPath)
	assert.Contains(t, cfg.Indexing.IndexPath, ".bpomverify")
}

// TestNewConfig_RegistryDSN_UsesHomeDir tests that the default registry
// DSN lives under the home directory.
func TestNewConfig_RegistryDSN_UsesHomeDir(t *testing.T) {
	cfg := NewConfig()

	assert.NotEmpty(t, cfg.Registry.DSN)
	assert.Contains(t, cfg.Registry.DSN, ".bpomverify")
}
