package executor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/config"
	"policypipeline/internal/executor"
	"policypipeline/internal/irrigation"
	"policypipeline/internal/monolith"
)

func buildTask(t *testing.T, baseSlot string) irrigation.ExecutableTask {
	t.Helper()
	q := monolith.Question{
		QuestionGlobal: 1,
		PolicyAreaID:   "PA01",
		DimensionID:    "D1",
		BaseSlot:       baseSlot,
		Patterns:       []monolith.Pattern{{ID: "p1", PolicyAreaID: "PA01", Text: "meta", MatchMode: "substring"}},
	}
	routing := irrigation.ChunkRoutingResult{
		ChunkID:      "PA01-DIM01",
		PolicyAreaID: "PA01",
		DimensionID:  "DIM01",
		TextContent:  "La meta del programa es reducir la pobreza en un 10% para 2027.",
	}
	task, err := irrigation.NewExecutableTask(q, routing, q.Patterns, nil, "corr-1", time.Now().UTC())
	require.NoError(t, err)
	return task
}

func TestDispatchKnownSlot(t *testing.T) {
	task := buildTask(t, "D1-Q1")
	caps := config.DefaultExecutorMemoryCaps()

	log, err := executor.Dispatch(task, "La meta del programa es reducir la pobreza en un 10% para 2027.", task.ApplicablePatterns(), nil, caps)
	require.NoError(t, err)
	require.Equal(t, task.TaskID(), log.TaskID)
	require.Len(t, log.Methods, 2)
	require.True(t, log.Methods[0].Success)
}

func TestDispatchUnknownSlotErrors(t *testing.T) {
	task := buildTask(t, "D9-Q9")
	caps := config.DefaultExecutorMemoryCaps()

	_, err := executor.Dispatch(task, "texto", nil, nil, caps)
	require.Error(t, err)
}

func TestDispatchTruncatesOversizedText(t *testing.T) {
	task := buildTask(t, "D4-Q1")
	caps := config.ExecutorMemoryCaps{
		EntityBytes:       1024,
		DAGBytes:          1024,
		CausalEffectBytes: 1024,
		SemanticBytes:     1024,
		FinancialBytes:    16,
		GenericBytes:      1024,
	}

	longText := ""
	for i := 0; i < 100; i++ {
		longText += "COP 1.000.000 "
	}

	log, err := executor.Dispatch(task, longText, nil, nil, caps)
	require.NoError(t, err)
	require.NotEmpty(t, log.Truncations)
	require.Equal(t, "BudgetTraceability.trace", log.Truncations[0].Method)
}

func TestParseBaseSlot(t *testing.T) {
	dim, q, ok := executor.ParseBaseSlot("D3-Q5")
	require.True(t, ok)
	require.Equal(t, 3, dim)
	require.Equal(t, 5, q)

	_, _, ok = executor.ParseBaseSlot("garbage")
	require.False(t, ok)
}

func TestAllThirtySlotsRegistered(t *testing.T) {
	for dim := 1; dim <= 6; dim++ {
		for q := 1; q <= 5; q++ {
			slot := ""
			slot += "D" + itoa(dim) + "Q" + itoa(q)
			_, ok := executor.Sequences[slot]
			require.True(t, ok, "missing sequence for %s", slot)
		}
	}
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
