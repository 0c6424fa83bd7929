package manifest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/aggregation"
	"policypipeline/internal/manifest"
)

func fullHashes() []string {
	hashes := make([]string, 300)
	for i := range hashes {
		hashes[i] = "hash-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
	}
	return hashes
}

func TestBuildSuccessWhenAllConditionsMet(t *testing.T) {
	in := manifest.Inputs{
		GatesPassed:         true,
		TaskCount:           300,
		EvidenceHashes:      fullHashes(),
		SourceHash:          "abc123",
		CPPMerkleRoot:       "root123",
		ExecutionPlanHash:   "plan123",
		Overall:             aggregation.OverallScore{WeightedMean: 0.8},
		DimensionScoreCount: 60,
	}
	m := manifest.Build(in, time.Now().UTC())
	require.True(t, m.Success)
	require.Len(t, m.EvidenceHashes, 300)
}

func TestBuildFailsOnGateFailure(t *testing.T) {
	in := manifest.Inputs{
		GatesPassed:         false,
		TaskCount:           300,
		EvidenceHashes:      fullHashes(),
		DimensionScoreCount: 60,
	}
	m := manifest.Build(in, time.Now().UTC())
	require.False(t, m.Success)
}

func TestBuildFailsOnWrongTaskCount(t *testing.T) {
	in := manifest.Inputs{
		GatesPassed:         true,
		TaskCount:           299,
		EvidenceHashes:      fullHashes(),
		DimensionScoreCount: 60,
	}
	m := manifest.Build(in, time.Now().UTC())
	require.False(t, m.Success)
}

func TestBuildFailsOnEmptyEvidenceHash(t *testing.T) {
	hashes := fullHashes()
	hashes[10] = ""
	in := manifest.Inputs{
		GatesPassed:         true,
		TaskCount:           300,
		EvidenceHashes:      hashes,
		DimensionScoreCount: 60,
	}
	m := manifest.Build(in, time.Now().UTC())
	require.False(t, m.Success)
}

func TestBuildFailsOnIncompleteAggregationCoverage(t *testing.T) {
	in := manifest.Inputs{
		GatesPassed:         true,
		TaskCount:           300,
		EvidenceHashes:      fullHashes(),
		DimensionScoreCount: 59,
	}
	m := manifest.Build(in, time.Now().UTC())
	require.False(t, m.Success)
}

func TestEvidenceHashesAreSortedInManifest(t *testing.T) {
	in := manifest.Inputs{
		GatesPassed:         true,
		TaskCount:           300,
		EvidenceHashes:      fullHashes(),
		DimensionScoreCount: 60,
	}
	m := manifest.Build(in, time.Now().UTC())
	for i := 1; i < len(m.EvidenceHashes); i++ {
		require.LessOrEqual(t, m.EvidenceHashes[i-1], m.EvidenceHashes[i])
	}
}

func TestToJSONProducesValidOutput(t *testing.T) {
	in := manifest.Inputs{GatesPassed: true, TaskCount: 300, EvidenceHashes: fullHashes(), DimensionScoreCount: 60}
	m := manifest.Build(in, time.Now().UTC())
	data, err := m.ToJSON()
	require.NoError(t, err)
	require.Contains(t, string(data), "\"success\": true")
}
