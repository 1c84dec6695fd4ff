package regexcode

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_MatchesDKLPattern(t *testing.T) {
	ex := NewDefault()
	m, ok := ex.Extract("Kemasan No. DKL1234567890 isi 10 tablet")
	require.True(t, ok)
	assert.Equal(t, "DKL1234567890", m.Code)
	assert.Equal(t, "pat_0", m.PatternID)
}

func TestExtract_MatchesMDPattern(t *testing.T) {
	ex := NewDefault()
	m, ok := ex.Extract("MD123456789012")
	require.True(t, ok)
	assert.Equal(t, "MD123456789012", m.Code)
}

func TestExtract_MatchesPIRTPattern(t *testing.T) {
	ex := NewDefault()
	m, ok := ex.Extract("P-IRT123456789012345")
	require.True(t, ok)
	assert.Contains(t, m.Code, "IRT")
}

func TestExtract_BlacklistedTextRejected(t *testing.T) {
	ex := NewDefault()
	_, ok := ex.Extract("DKL1234567890 SAMPLE not for sale")
	assert.False(t, ok)
}

func TestExtract_NoMatchReturnsFalse(t *testing.T) {
	ex := NewDefault()
	_, ok := ex.Extract("just some random packaging text")
	assert.False(t, ok)
}

func TestExtract_ConfidenceIncreasesWithMatchLength(t *testing.T) {
	ex := NewDefault()
	short, _ := ex.Extract("DKL12345678")
	long, _ := ex.Extract("DKL12345678901234")
	assert.Less(t, short.Confidence, long.Confidence)
	assert.LessOrEqual(t, long.Confidence, 0.99)
}

func TestExtract_DisallowedPrefixIsRejected(t *testing.T) {
	ex, err := build([]string{"XX"}, DefaultPatterns, DefaultBlacklist)
	require.NoError(t, err)
	_, ok := ex.Extract("DKL1234567890")
	assert.False(t, ok)
}

func TestLoadConfig_MissingFileFallsBackToDefaults(t *testing.T) {
	ex := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	m, ok := ex.Extract("DKL1234567890")
	assert.True(t, ok)
	assert.Equal(t, "DKL1234567890", m.Code)
}

func TestLoadConfig_InvalidYAMLFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [["), 0o644))

	ex := LoadConfig(path)
	m, ok := ex.Extract("DKL1234567890")
	assert.True(t, ok)
	assert.Equal(t, "DKL1234567890", m.Code)
}

func TestLoadConfig_CustomPatternsOverrideDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regex.yaml")
	content := `
allow_prefix: ["ZZ"]
patterns: ["ZZ\\d{6}"]
blacklist: []
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ex := LoadConfig(path)
	m, ok := ex.Extract("code ZZ123456 printed here")
	require.True(t, ok)
	assert.Equal(t, "ZZ123456", m.Code)

	_, ok = ex.Extract("DKL1234567890")
	assert.False(t, ok)
}
