package scoring_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/scoring"
)

func sampleQuestion() struct {
	Global       int
	BaseSlot     string
	PolicyAreaID string
	DimensionID  string
} {
	return struct {
		Global       int
		BaseSlot     string
		PolicyAreaID string
		DimensionID  string
	}{Global: 1, BaseSlot: "D1-Q1", PolicyAreaID: "PA01", DimensionID: "DIM01"}
}

func TestTypeAScoringMatchesDeclaredFormula(t *testing.T) {
	evidence := map[string]any{
		"elements":   []string{"e1", "e2", "e3"},
		"confidence": 0.8,
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	result, err := scoring.Score("TYPE_A", evidence, scoring.DefaultThresholds(), sampleQuestion(), now)
	require.NoError(t, err)
	require.InDelta(t, 1.8, result.RawScore, 1e-9)
	require.InDelta(t, 0.6, result.Normalized, 1e-9)
	require.Equal(t, scoring.QualityAceptable, result.Quality)
}

func TestScoreMissingRequiredKeyFails(t *testing.T) {
	evidence := map[string]any{"confidence": 0.5}
	_, err := scoring.Score("TYPE_A", evidence, scoring.DefaultThresholds(), sampleQuestion(), time.Now().UTC())
	require.Error(t, err)
	var verr *scoring.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestScoreUnknownModalityFails(t *testing.T) {
	_, err := scoring.Score("TYPE_Z", map[string]any{}, scoring.DefaultThresholds(), sampleQuestion(), time.Now().UTC())
	require.Error(t, err)
}

func TestDeterminismOfEvidenceHash(t *testing.T) {
	evidence := map[string]any{"elements": []string{"a", "b"}, "confidence": 0.5}
	h1, err := scoring.EvidenceHash(evidence)
	require.NoError(t, err)
	h2, err := scoring.EvidenceHash(evidence)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestDeterminismOfScoreAcrossRepeatedCalls(t *testing.T) {
	evidence := map[string]any{"elements": []string{"a", "b", "c", "d"}, "confidence": 0.9}
	now := time.Now().UTC()
	q := sampleQuestion()

	first, err := scoring.Score("TYPE_A", evidence, scoring.DefaultThresholds(), q, now)
	require.NoError(t, err)
	second, err := scoring.Score("TYPE_A", evidence, scoring.DefaultThresholds(), q, now)
	require.NoError(t, err)

	require.Equal(t, first.RawScore, second.RawScore)
	require.Equal(t, first.Normalized, second.Normalized)
	require.Equal(t, first.EvidenceHash, second.EvidenceHash)
}

func TestThresholdsValidateRejectsNonMonotone(t *testing.T) {
	bad := scoring.Thresholds{Excelente: 0.5, Bueno: 0.7, Aceptable: 0.55}
	require.Error(t, bad.Validate())

	good := scoring.DefaultThresholds()
	require.NoError(t, good.Validate())
}

func TestTypeCInvertsContradictionCount(t *testing.T) {
	low := map[string]any{"contradiction_count": 0.0}
	high := map[string]any{"contradiction_count": 5.0}
	now := time.Now().UTC()
	q := sampleQuestion()

	lowResult, err := scoring.Score("TYPE_C", low, scoring.DefaultThresholds(), q, now)
	require.NoError(t, err)
	highResult, err := scoring.Score("TYPE_C", high, scoring.DefaultThresholds(), q, now)
	require.NoError(t, err)

	require.Greater(t, lowResult.Normalized, highResult.Normalized)
}

func TestAllSixModalitiesRegistered(t *testing.T) {
	for _, name := range []string{"TYPE_A", "TYPE_B", "TYPE_C", "TYPE_D", "TYPE_E", "TYPE_F"} {
		_, ok := scoring.Modalities[name]
		require.True(t, ok, "modality %s not registered", name)
	}
}
