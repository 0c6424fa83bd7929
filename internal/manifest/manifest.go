// Package manifest assembles and serializes the Verification Manifest: the
// end-of-run record a caller consults to decide whether a document's run is
// trustworthy without re-deriving any of its intermediate artifacts.
package manifest

import (
	"encoding/json"
	"sort"
	"time"

	"policypipeline/internal/aggregation"
	"policypipeline/internal/diagnostic"
)

const requiredTaskCount = 300
const requiredDimensionCount = 60

// Manifest is the Verification Manifest record.
type Manifest struct {
	Success              bool                   `json:"success"`
	SourceHash           string                 `json:"source_hash"`
	CPPMerkleRoot        string                 `json:"cpp_merkle_root"`
	ExecutionPlanHash    string                 `json:"execution_plan_hash"`
	EvidenceHashes       []string               `json:"evidence_hashes"`
	Overall              aggregation.OverallScore `json:"overall"`
	Diagnostics          []*diagnostic.Diagnostic `json:"diagnostics"`
	CorrelationID        string                 `json:"correlation_id"`
	GeneratedAt          time.Time              `json:"generated_at"`
}

// Inputs collects everything the manifest needs to decide success.
type Inputs struct {
	GatesPassed         bool
	TaskCount           int
	EvidenceHashes      []string
	SourceHash          string
	CPPMerkleRoot       string
	ExecutionPlanHash   string
	Overall             aggregation.OverallScore
	DimensionScoreCount int
	Diagnostics         []*diagnostic.Diagnostic
	CorrelationID       string
}

// Build assembles the manifest, computing success per the conjunction the
// external interface names: all phase gates passed, exactly 300 tasks ran,
// every scored result produced a non-empty evidence hash, and aggregation
// covered all 60 (PA, DIM) pairs.
func Build(in Inputs, now time.Time) Manifest {
	hashes := make([]string, len(in.EvidenceHashes))
	copy(hashes, in.EvidenceHashes)
	sort.Strings(hashes)

	nonDefault := true
	for _, h := range hashes {
		if h == "" {
			nonDefault = false
			break
		}
	}

	success := in.GatesPassed &&
		in.TaskCount == requiredTaskCount &&
		len(hashes) == requiredTaskCount &&
		nonDefault &&
		in.DimensionScoreCount == requiredDimensionCount

	return Manifest{
		Success:           success,
		SourceHash:        in.SourceHash,
		CPPMerkleRoot:     in.CPPMerkleRoot,
		ExecutionPlanHash: in.ExecutionPlanHash,
		EvidenceHashes:    hashes,
		Overall:           in.Overall,
		Diagnostics:       in.Diagnostics,
		CorrelationID:     in.CorrelationID,
		GeneratedAt:       now,
	}
}

// ToJSON serializes the manifest with sorted keys at every nested
// level that matters for determinism (the top-level struct tags already fix
// field order; EvidenceHashes is pre-sorted by Build).
func (m Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
