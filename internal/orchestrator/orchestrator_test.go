package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/config"
	"policypipeline/internal/contentstore"
	"policypipeline/internal/monolith"
	"policypipeline/internal/objectstore"
	"policypipeline/internal/orchestrator"
	"policypipeline/internal/parser"
	"policypipeline/internal/signalregistry"
)

func testMonolith(t *testing.T) *monolith.Monolith {
	t.Helper()
	m, err := monolith.Parse([]byte(`{"schema_version":"2.0.0","blocks":{},"questions":[]}`))
	require.NoError(t, err)
	return m
}

func testDeps(t *testing.T) orchestrator.Dependencies {
	t.Helper()
	backend := objectstore.NewMemoryStore()
	store := contentstore.New(backend)
	registry := parser.NewRegistry(parser.PlainTextAdapter{})
	mono := testMonolith(t)
	sigReg, err := signalregistry.New(mono, 16, 0)
	require.NoError(t, err)

	return orchestrator.Dependencies{
		Content:  store,
		Parsers:  registry,
		Monolith: mono,
		Signals:  sigReg,
		Config:   config.Default(),
	}
}

func TestRunOneRejectsUnsupportedMIME(t *testing.T) {
	deps := testDeps(t)
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

	_, _, err := orchestrator.RunOne(context.Background(), deps, orchestrator.Job{
		Data:          pngHeader,
		Title:         "not-text",
		PolicyUnitID:  "PU1",
		CorrelationID: "corr-1",
	})
	require.Error(t, err)
}

func TestRunOneFailsAtChunkMatrixWithUnlabelledChunks(t *testing.T) {
	deps := testDeps(t)

	_, _, err := orchestrator.RunOne(context.Background(), deps, orchestrator.Job{
		Data:          []byte("Eje 1. Desarrollo social.\n\nPrograma 1.1 Salud para todos.\n\nEsta es una politica sin estructura de indicadores."),
		Title:         "doc",
		PolicyUnitID:  "PU1",
		CorrelationID: "corr-1",
	})
	require.Error(t, err)
}

func TestRunManyPreservesSubmissionOrder(t *testing.T) {
	deps := testDeps(t)
	pngHeader := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

	jobs := []orchestrator.Job{
		{Data: pngHeader, Title: "a", PolicyUnitID: "PU1", CorrelationID: "corr-a"},
		{Data: pngHeader, Title: "b", PolicyUnitID: "PU2", CorrelationID: "corr-b"},
		{Data: pngHeader, Title: "c", PolicyUnitID: "PU3", CorrelationID: "corr-c"},
	}

	results := orchestrator.RunMany(context.Background(), deps, jobs, 2)
	require.Len(t, results, 3)
	for i, r := range results {
		require.Equal(t, jobs[i].Title, r.Job.Title)
		require.Error(t, r.Err)
	}
}
