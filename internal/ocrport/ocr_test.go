package ocrport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	title     string
	titleConf float64
	titleOK   bool
	titleErr  error
	lines     []Line
	linesErr  error
}

func (s stubEngine) OCRTitle(ctx context.Context, image []byte) (string, float64, bool, error) {
	return s.title, s.titleConf, s.titleOK, s.titleErr
}

func (s stubEngine) OCRAllLines(ctx context.Context, image []byte) ([]Line, error) {
	return s.lines, s.linesErr
}

func TestBestLine_PicksHighestLengthTimesConfidence(t *testing.T) {
	lines := []Line{
		{Text: "ab", Conf: 0.9},
		{Text: "paracetamol 500mg", Conf: 0.8},
	}
	best, ok := BestLine(lines)
	assert.True(t, ok)
	assert.Equal(t, "paracetamol 500mg", best.Text)
}

func TestBestLine_EmptyReturnsFalse(t *testing.T) {
	_, ok := BestLine(nil)
	assert.False(t, ok)
}

func TestFallbackEngine_UsesPrimaryOnSuccess(t *testing.T) {
	primary := stubEngine{title: "primary text", titleConf: 0.9, titleOK: true}
	secondary := stubEngine{title: "secondary text", titleConf: 0.5, titleOK: true}
	eng := NewFallbackEngine(primary, secondary)

	text, _, ok, err := eng.OCRTitle(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "primary text", text)
}

func TestFallbackEngine_FallsBackOnPrimaryError(t *testing.T) {
	primary := stubEngine{titleErr: errors.New("engine crashed")}
	secondary := stubEngine{title: "secondary text", titleConf: 0.5, titleOK: true}
	eng := NewFallbackEngine(primary, secondary)

	text, _, ok, err := eng.OCRTitle(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "secondary text", text)
}

func TestFallbackEngine_EmptyResultIsNotAFailure(t *testing.T) {
	primary := stubEngine{titleOK: false}
	secondary := stubEngine{title: "should not be used", titleOK: true}
	eng := NewFallbackEngine(primary, secondary)

	_, _, ok, err := eng.OCRTitle(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFallbackEngine_NoSecondaryPropagatesError(t *testing.T) {
	primary := stubEngine{titleErr: errors.New("engine crashed")}
	eng := NewFallbackEngine(primary, nil)

	_, _, _, err := eng.OCRTitle(context.Background(), nil)
	assert.Error(t, err)
}
