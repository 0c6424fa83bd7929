package aggregation_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/aggregation"
	"policypipeline/internal/scoring"
)

func makeResults(n int, normalized float64) []scoring.ScoredResult {
	out := make([]scoring.ScoredResult, n)
	for i := 0; i < n; i++ {
		out[i] = scoring.ScoredResult{QuestionGlobal: i + 1, Normalized: normalized}
	}
	return out
}

func TestAggregateDimensionUniformWeights(t *testing.T) {
	results := makeResults(5, 0.8)
	d, err := aggregation.AggregateDimension("PA01", "DIM01", results, nil, true)
	require.NoError(t, err)
	require.InDelta(t, 0.8, d.WeightedMean, 1e-9)
}

func TestAggregateDimensionStrictCoverageError(t *testing.T) {
	results := makeResults(3, 0.8)
	_, err := aggregation.AggregateDimension("PA01", "DIM01", results, nil, true)
	require.Error(t, err)
	var covErr *aggregation.CoverageError
	require.ErrorAs(t, err, &covErr)
}

func TestAggregateDimensionNonStrictToleratesMissing(t *testing.T) {
	results := makeResults(3, 0.8)
	_, err := aggregation.AggregateDimension("PA01", "DIM01", results, nil, false)
	require.NoError(t, err)
}

func TestAggregateDimensionWeightSumValidation(t *testing.T) {
	results := makeResults(5, 0.8)
	badWeights := []float64{0.1, 0.1, 0.1, 0.1, 0.1}
	_, err := aggregation.AggregateDimension("PA01", "DIM01", results, badWeights, true)
	require.Error(t, err)
}

func TestAggregatePolicyAreaAndOverallRollUp(t *testing.T) {
	var dims []aggregation.DimensionScore
	for i := 1; i <= 6; i++ {
		d, err := aggregation.AggregateDimension("PA01", dimID(i), makeResults(5, 0.7), nil, true)
		require.NoError(t, err)
		dims = append(dims, d)
	}
	pa, err := aggregation.AggregatePolicyArea("PA01", dims, nil, true)
	require.NoError(t, err)
	require.InDelta(t, 0.7, pa.WeightedMean, 1e-9)

	var pas []aggregation.PolicyAreaScore
	for i := 1; i <= 10; i++ {
		pas = append(pas, aggregation.PolicyAreaScore{PolicyAreaID: paID(i), WeightedMean: 0.7})
	}
	overall, err := aggregation.AggregateOverall(pas, nil, true)
	require.NoError(t, err)
	require.InDelta(t, 0.7, overall.WeightedMean, 1e-9)
}

func TestAggregateOverallEmptyNonStrictReturnsZero(t *testing.T) {
	overall, err := aggregation.AggregateOverall(nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, 0.0, overall.WeightedMean)
}

func dimID(n int) string { return padded("DIM", n) }
func paID(n int) string  { return padded("PA", n) }
func padded(prefix string, n int) string {
	s := itoa(n)
	for len(s) < 2 {
		s = "0" + s
	}
	return prefix + s
}
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
