// Package cpp implements Phase 9 (Canonical packing): serializing the chunk
// graph, content stream, and provenance map into columnar form, computing
// per-chunk BLAKE3 hashes, building the Merkle root, and evaluating the six
// quality gates. A CPP is produced atomically and never mutated afterwards.
package cpp

import (
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"policypipeline/internal/chunking"
	"policypipeline/internal/contentstore"
	"policypipeline/internal/policygraph"
	"policypipeline/internal/provenance"
	"policypipeline/internal/textnorm"
)

// SchemaVersion is the fixed CPP schema version recorded in integrity.json.
const SchemaVersion = "CPP-2025.1"

// QualityMetrics holds the six measured gate values.
type QualityMetrics struct {
	ProvenanceCompleteness float64
	StructuralConsistency  float64
	KPILinkageRate         float64
	BudgetConsistencyScore float64
	BoundaryF1             float64
	ChunkOverlap           float64
}

// GateFailure names a single failed quality gate and its measured value.
type GateFailure struct {
	Gate      string
	Measured  float64
	Threshold float64
	Comparison string // ">=", "<=", "="
}

func (f GateFailure) Error() string {
	return fmt.Sprintf("quality gate %q failed: measured %.4f, required %s %.4f", f.Gate, f.Measured, f.Comparison, f.Threshold)
}

// EvaluateGates checks all six quality gates and returns the failures (in a
// fixed, deterministic order), if any.
func EvaluateGates(m QualityMetrics) []GateFailure {
	var failures []GateFailure
	check := func(name string, measured, threshold float64, cmp string, ok bool) {
		if !ok {
			failures = append(failures, GateFailure{Gate: name, Measured: measured, Threshold: threshold, Comparison: cmp})
		}
	}
	check("provenance_completeness", m.ProvenanceCompleteness, 1.0, "=", m.ProvenanceCompleteness == 1.0)
	check("structural_consistency", m.StructuralConsistency, 1.0, "=", m.StructuralConsistency == 1.0)
	check("kpi_linkage_rate", m.KPILinkageRate, 0.80, ">=", m.KPILinkageRate >= 0.80)
	check("budget_consistency_score", m.BudgetConsistencyScore, 0.95, ">=", m.BudgetConsistencyScore >= 0.95)
	check("boundary_f1", m.BoundaryF1, 0.85, ">=", m.BoundaryF1 >= 0.85)
	check("chunk_overlap", m.ChunkOverlap, 0.15, "<=", m.ChunkOverlap <= 0.15)
	return failures
}

// IntegrityIndex records per-chunk hashes and their Merkle root.
type IntegrityIndex struct {
	SchemaVersion string
	ChunkHashes   map[string]string // chunk id -> hex BLAKE3
	MerkleRoot    string
}

// PolicyManifest records the source document's hash, MIME type and size and
// the ids of the Ejes, Programas and Proyectos detected during ingestion.
// Years and territories are not recorded.
type PolicyManifest struct {
	SourceHash string
	MIME       string
	ByteCount  int64
	Ejes       []string
	Programas  []string
	Proyectos  []string
}

// CPP is the Canon Policy Package: the immutable output of the ingestion
// pipeline.
type CPP struct {
	Manifest       PolicyManifest
	Stream         textnorm.ContentStream
	Provenance     *provenance.Map
	ChunkGraph     chunking.Graph
	Integrity      IntegrityIndex
	Quality        QualityMetrics
	Metadata       map[string]string
}

// Pack runs Phase 9: hashes every chunk in parallel (deterministic,
// reassembled by chunk id, never by arrival order), builds the Merkle root,
// and assembles the CPP. Callers must evaluate EvaluateGates before trusting
// the result; Pack does not itself abort on gate failure so that the
// orchestrator can attach the specific ABORT diagnostic.
func Pack(contentManifest contentstore.Manifest, pg *policygraph.Graph, stream textnorm.ContentStream, provMap *provenance.Map, graph chunking.Graph, quality QualityMetrics) (CPP, error) {
	hashes, err := hashChunks(graph.Chunks)
	if err != nil {
		return CPP{}, err
	}

	root := merkleRoot(hashes)

	manifest := PolicyManifest{
		SourceHash: contentManifest.SourceHash,
		MIME:       contentManifest.MIME,
		ByteCount:  contentManifest.ByteCount,
	}
	for _, u := range pg.Units {
		switch u.Kind {
		case policygraph.KindEje:
			manifest.Ejes = append(manifest.Ejes, u.ID)
		case policygraph.KindPrograma:
			manifest.Programas = append(manifest.Programas, u.ID)
		case policygraph.KindProyecto:
			manifest.Proyectos = append(manifest.Proyectos, u.ID)
		}
	}
	sort.Strings(manifest.Ejes)
	sort.Strings(manifest.Programas)
	sort.Strings(manifest.Proyectos)

	return CPP{
		Manifest:   manifest,
		Stream:     stream,
		Provenance: provMap,
		ChunkGraph: graph,
		Integrity: IntegrityIndex{
			SchemaVersion: SchemaVersion,
			ChunkHashes:   hashes,
			MerkleRoot:    root,
		},
		Quality:  quality,
		Metadata: map[string]string{},
	}, nil
}

// hashChunks computes the BLAKE3 digest of every chunk's byte range in
// parallel, then returns them keyed by chunk id. Parallelism is safe because
// each goroutine only reads its own chunk and writes to its own slice slot
// under a shared mutex-free sharding by errgroup index.
func hashChunks(chunks []chunking.Chunk) (map[string]string, error) {
	results := make([]string, len(chunks))
	g := new(errgroup.Group)
	for i := range chunks {
		i := i
		g.Go(func() error {
			c := chunks[i]
			results[i] = contentstore.Digest([]byte(c.Text))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(chunks))
	for i, c := range chunks {
		out[c.ID] = results[i]
	}
	return out, nil
}

// merkleRoot computes the BLAKE3 of the sorted chunk hashes concatenated in
// sorted order, matching the determinism scenario in the testable
// properties section: two runs over the same input produce the same root.
func merkleRoot(hashes map[string]string) string {
	values := make([]string, 0, len(hashes))
	for _, h := range hashes {
		values = append(values, h)
	}
	sort.Strings(values)

	concat := make([]byte, 0, len(values)*64)
	for _, h := range values {
		concat = append(concat, []byte(h)...)
	}
	return contentstore.Digest(concat)
}
