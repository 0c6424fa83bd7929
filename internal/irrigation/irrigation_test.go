package irrigation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/chunking"
	"policypipeline/internal/chunkmatrix"
	"policypipeline/internal/irrigation"
	"policypipeline/internal/monolith"
)

func buildMatrix(t *testing.T) chunkmatrix.Matrix {
	t.Helper()
	var chunks []chunking.Chunk
	for pa := 1; pa <= 10; pa++ {
		for dim := 1; dim <= 6; dim++ {
			paID := paID(pa)
			dimID := dimID(dim)
			chunks = append(chunks, chunking.Chunk{
				ID:           paID + "-" + dimID,
				Text:         "contenido de prueba",
				PolicyAreaID: paID,
				DimensionID:  dimID,
				ByteStart:    0,
				ByteEnd:      10,
			})
		}
	}
	m, err := chunkmatrix.Build(chunks)
	require.NoError(t, err)
	return m
}

func paID(n int) string { return padded("PA", n, 2) }
func dimID(n int) string { return padded("DIM", n, 2) }
func padded(prefix string, n, width int) string {
	s := itoa(n)
	for len(s) < width {
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

func TestRouteChunkStrictEquality(t *testing.T) {
	matrix := buildMatrix(t)
	q := monolith.Question{QuestionGlobal: 1, PolicyAreaID: "PA01", DimensionID: "D1"}
	routing, err := irrigation.RouteChunk(q, matrix)
	require.NoError(t, err)
	require.Equal(t, "PA01-DIM01", routing.ChunkID)
	require.Equal(t, "DIM01", routing.DimensionID)
}

func TestRouteChunkMismatchErrors(t *testing.T) {
	matrix := buildMatrix(t)
	q := monolith.Question{QuestionGlobal: 2, PolicyAreaID: "PA99", DimensionID: "D1"}
	_, err := irrigation.RouteChunk(q, matrix)
	require.Error(t, err)
}

func TestFilterPatternsStrictEquality(t *testing.T) {
	matrix := buildMatrix(t)
	q := monolith.Question{
		QuestionGlobal: 1,
		PolicyAreaID:   "PA01",
		DimensionID:    "D1",
		Patterns: []monolith.Pattern{
			{ID: "p1", PolicyAreaID: "PA01"},
			{ID: "p2", PolicyAreaID: "PA02"},
		},
	}
	routing, err := irrigation.RouteChunk(q, matrix)
	require.NoError(t, err)

	filtered, warned, err := irrigation.FilterPatterns(q, routing)
	require.NoError(t, err)
	require.False(t, warned)
	require.Len(t, filtered, 1)
	require.Equal(t, "p1", filtered[0].ID)
}

func TestFilterPatternsMissingPolicyAreaErrors(t *testing.T) {
	matrix := buildMatrix(t)
	q := monolith.Question{
		QuestionGlobal: 1,
		PolicyAreaID:   "PA01",
		DimensionID:    "D1",
		Patterns: []monolith.Pattern{
			{ID: "p1"},
		},
	}
	routing, err := irrigation.RouteChunk(q, matrix)
	require.NoError(t, err)

	_, _, err = irrigation.FilterPatterns(q, routing)
	require.Error(t, err)
}

func TestSchemaCompatibilityAsymmetricImplication(t *testing.T) {
	cases := []struct {
		name      string
		qRequired bool
		cRequired bool
		wantErr   bool
	}{
		{"both required", true, true, false},
		{"q required c not", true, false, true},
		{"q not required c required", false, true, false},
		{"neither required", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := []monolith.ExpectedElement{{Name: "e", Type: "string", Required: tc.qRequired}}
			c := []monolith.ExpectedElement{{Name: "e", Type: "string", Required: tc.cRequired}}
			err := irrigation.CheckSchemaCompatibility(q, c)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestSchemaCompatibilityThresholdOrdering(t *testing.T) {
	q := []monolith.ExpectedElement{{Name: "e", Type: "number", HasMin: true, Minimum: 5}}

	below := []monolith.ExpectedElement{{Name: "e", Type: "number", HasMin: true, Minimum: 3}}
	require.Error(t, irrigation.CheckSchemaCompatibility(q, below))

	atOrAbove := []monolith.ExpectedElement{{Name: "e", Type: "number", HasMin: true, Minimum: 5}}
	require.NoError(t, irrigation.CheckSchemaCompatibility(q, atOrAbove))
}

func TestExecutionPlanCardinality(t *testing.T) {
	matrix := buildMatrix(t)
	var tasks []irrigation.ExecutableTask
	now := time.Now().UTC()

	for pa := 1; pa <= 10; pa++ {
		for dim := 1; dim <= 6; dim++ {
			for j := 0; j < 5; j++ {
				q := monolith.Question{
					QuestionGlobal: (pa-1)*30 + (dim-1)*5 + j + 1,
					PolicyAreaID:   paID(pa),
					DimensionID:    dimID(dim),
					BaseSlot:       "D1-Q1",
				}
				routing, err := irrigation.RouteChunk(q, matrix)
				require.NoError(t, err)
				filtered, _, err := irrigation.FilterPatterns(q, routing)
				require.NoError(t, err)
				task, err := irrigation.NewExecutableTask(q, routing, filtered, nil, "corr-1", now)
				require.NoError(t, err)
				tasks = append(tasks, task)
			}
		}
	}

	plan, err := irrigation.NewExecutionPlan(tasks)
	require.NoError(t, err)
	require.Equal(t, 300, plan.Len())
	require.NotEmpty(t, plan.IntegrityHash())
}

func TestExecutionPlanRejectsWrongCount(t *testing.T) {
	_, err := irrigation.NewExecutionPlan(nil)
	require.Error(t, err)
}

func TestExecutableTaskImmutability(t *testing.T) {
	matrix := buildMatrix(t)
	q := monolith.Question{QuestionGlobal: 1, PolicyAreaID: "PA01", DimensionID: "D1", Patterns: []monolith.Pattern{{ID: "p1", PolicyAreaID: "PA01"}}}
	routing, err := irrigation.RouteChunk(q, matrix)
	require.NoError(t, err)
	filtered, _, err := irrigation.FilterPatterns(q, routing)
	require.NoError(t, err)
	task, err := irrigation.NewExecutableTask(q, routing, filtered, nil, "corr", time.Now().UTC())
	require.NoError(t, err)

	got := task.ApplicablePatterns()
	got[0].ID = "mutated"

	require.Equal(t, "p1", task.ApplicablePatterns()[0].ID, "mutating a returned copy must not affect the task")
}
