// Package aggregation implements the dimension -> policy-area -> overall
// weighted rollups. All iteration is over explicit, sorted slices rather
// than map ranges, so the same input always produces the same output.
package aggregation

import (
	"fmt"
	"math"
	"sort"

	"policypipeline/internal/diagnostic"
	"policypipeline/internal/scoring"
)

const weightTolerance = 1e-6

// CoverageError reports a rollup over fewer inputs than required. It is
// returned as a hard error in strict mode; in non-strict mode the rollup
// proceeds over the inputs present and no error or warning is emitted.
type CoverageError struct {
	Scope    string
	Key      string
	Expected int
	Got      int
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("aggregation: %s %q expected %d inputs, got %d", e.Scope, e.Key, e.Expected, e.Got)
}

// DimensionScore is the (PA, DIM) rollup of five question scores.
type DimensionScore struct {
	PolicyAreaID   string
	DimensionID    string
	WeightedMean   float64
	QuestionScores []float64
	Weights        []float64
	Coverage       map[string]int
}

// PolicyAreaScore is the PA rollup of six dimension scores.
type PolicyAreaScore struct {
	PolicyAreaID    string
	WeightedMean    float64
	DimensionScores []DimensionScore
	Weights         []float64
}

// OverallScore is the final rollup of ten policy-area scores.
type OverallScore struct {
	WeightedMean     float64
	PolicyAreaScores []PolicyAreaScore
	Weights          []float64
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

func validateWeights(weights []float64, n int) error {
	if len(weights) != n {
		return fmt.Errorf("aggregation: expected %d weights, got %d", n, len(weights))
	}
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("aggregation: weights must sum to 1.0 +/- %.0e, got %.9f", weightTolerance, sum)
	}
	return nil
}

func weightedMean(values, weights []float64) float64 {
	var sum float64
	for i, v := range values {
		sum += v * weights[i]
	}
	return sum
}

// AggregateDimension implements the dimension rollup: exactly five question
// scores, sorted by question_global so the weighted mean is order-independent
// of input ordering, weighted by the declared (default uniform) weights.
func AggregateDimension(policyAreaID, dimensionID string, results []scoring.ScoredResult, weights []float64, strict bool) (DimensionScore, error) {
	sorted := make([]scoring.ScoredResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].QuestionGlobal < sorted[j].QuestionGlobal })

	const expected = 5
	if len(sorted) != expected {
		covErr := &CoverageError{Scope: "dimension", Key: policyAreaID + "/" + dimensionID, Expected: expected, Got: len(sorted)}
		if strict {
			return DimensionScore{}, covErr
		}
	}

	if weights == nil {
		weights = uniformWeights(len(sorted))
	}
	if err := validateWeights(weights, len(sorted)); err != nil {
		return DimensionScore{}, diagnostic.DataContract("aggregation.dimension", err.Error(), map[string]string{
			"policy_area_id": policyAreaID,
			"dimension_id":   dimensionID,
		})
	}

	values := make([]float64, len(sorted))
	for i, r := range sorted {
		values[i] = r.Normalized
	}

	return DimensionScore{
		PolicyAreaID:   policyAreaID,
		DimensionID:    dimensionID,
		WeightedMean:   weightedMean(values, weights),
		QuestionScores: values,
		Weights:        weights,
		Coverage:       map[string]int{"expected": expected, "got": len(sorted)},
	}, nil
}

// AggregatePolicyArea implements the policy-area rollup over six dimension
// scores, sorted by dimension id.
func AggregatePolicyArea(policyAreaID string, dims []DimensionScore, weights []float64, strict bool) (PolicyAreaScore, error) {
	sorted := make([]DimensionScore, len(dims))
	copy(sorted, dims)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DimensionID < sorted[j].DimensionID })

	const expected = 6
	if len(sorted) != expected && strict {
		return PolicyAreaScore{}, &CoverageError{Scope: "policy_area", Key: policyAreaID, Expected: expected, Got: len(sorted)}
	}

	if weights == nil {
		weights = uniformWeights(len(sorted))
	}
	if err := validateWeights(weights, len(sorted)); err != nil {
		return PolicyAreaScore{}, diagnostic.DataContract("aggregation.policy_area", err.Error(), map[string]string{"policy_area_id": policyAreaID})
	}

	values := make([]float64, len(sorted))
	for i, d := range sorted {
		values[i] = d.WeightedMean
	}

	return PolicyAreaScore{
		PolicyAreaID:    policyAreaID,
		WeightedMean:    weightedMean(values, weights),
		DimensionScores: sorted,
		Weights:         weights,
	}, nil
}

// AggregateOverall implements the final rollup over ten policy-area scores,
// sorted by policy area id.
func AggregateOverall(pas []PolicyAreaScore, weights []float64, strict bool) (OverallScore, error) {
	sorted := make([]PolicyAreaScore, len(pas))
	copy(sorted, pas)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PolicyAreaID < sorted[j].PolicyAreaID })

	const expected = 10
	if len(sorted) != expected && strict {
		return OverallScore{}, &CoverageError{Scope: "overall", Key: "all", Expected: expected, Got: len(sorted)}
	}
	if len(sorted) == 0 {
		return OverallScore{WeightedMean: 0}, nil
	}

	if weights == nil {
		weights = uniformWeights(len(sorted))
	}
	if err := validateWeights(weights, len(sorted)); err != nil {
		return OverallScore{}, diagnostic.DataContract("aggregation.overall", err.Error(), nil)
	}

	values := make([]float64, len(sorted))
	for i, pa := range sorted {
		values[i] = pa.WeightedMean
	}

	return OverallScore{
		WeightedMean:     weightedMean(values, weights),
		PolicyAreaScores: sorted,
		Weights:          weights,
	}, nil
}
