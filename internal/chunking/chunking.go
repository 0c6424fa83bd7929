// Package chunking implements Phase 8 (Advanced chunking): MICRO/MESO/MACRO
// chunks conditioned on the policy graph, never crossing an Eje or Programa
// boundary, with the six typed edges of the chunk graph. It reuses the
// teacher's sentence-boundary splitter (internal/textsplitters) for MICRO
// segmentation instead of a naive fixed-length cut, so overlap and boundary
// quality follow the same heuristics the teacher's RAG ingestion path uses.
package chunking

import (
	"fmt"
	"sort"
	"strings"

	"policypipeline/internal/contentstore"
	"policypipeline/internal/monolith"
	"policypipeline/internal/policygraph"
	"policypipeline/internal/provenance"
	"policypipeline/internal/tables"
	"policypipeline/internal/textsplitters"
)

// Resolution tags a chunk's granularity.
type Resolution string

const (
	ResolutionMicro Resolution = "MICRO"
	ResolutionMeso  Resolution = "MESO"
	ResolutionMacro Resolution = "MACRO"
)

// EdgeType is one of the six typed chunk-graph edges.
type EdgeType string

const (
	EdgePrecedes           EdgeType = "PRECEDES"
	EdgeContains           EdgeType = "CONTAINS"
	EdgeRefersTo           EdgeType = "REFERS_TO"
	EdgeDefinedBy          EdgeType = "DEFINED_BY"
	EdgeJustifiesBudget    EdgeType = "JUSTIFIES_BUDGET"
	EdgeSatisfiesIndicator EdgeType = "SATISFIES_INDICATOR"
)

// PolicyFacets carries the policy tagging attributes of a chunk.
type PolicyFacets struct {
	AreaID      string
	Eje         string
	Programa    string
	Proyecto    string
	ODSTags     []string
}

// TemporalFacets carries the temporal tagging attributes of a chunk.
type TemporalFacets struct {
	FromYear int
	ToYear   int
	Vigencia string
}

// GeoFacets carries the geographic tagging attributes of a chunk.
type GeoFacets struct {
	TerritorialLevel string
	Code             string
	Name             string
}

// ConfidenceScores carries per-layer confidence as produced upstream.
type ConfidenceScores struct {
	Layout float64
	OCR    float64
	Typing float64
}

// Chunk is the unit produced by Phase 8, immutable once returned by Build.
type Chunk struct {
	ID             string
	Text           string
	Resolution     Resolution
	ByteStart      int64
	ByteEnd        int64
	ContentHash    string
	PolicyAreaID   string
	DimensionID    string
	Policy         PolicyFacets
	Temporal       TemporalFacets
	Geo            GeoFacets
	KPIs           []tables.KPI
	Budgets        []tables.BudgetRow
	Provenance     []provenance.Binding
	Confidence     ConfidenceScores
	ExpectedElements []monolith.ExpectedElement
}

// Edge is one typed chunk-graph edge.
type Edge struct {
	From string
	To   string
	Type EdgeType
}

// Graph is the Phase 8 postcondition: a multi-resolution chunk graph with
// all six edge types possible and every MICRO chunk nested under a MESO
// chunk nested under a MACRO chunk.
type Graph struct {
	Chunks []Chunk
	Edges  []Edge
}

// Options mirrors the recognized chunking configuration keys.
type Options struct {
	MinChunkSize int // MICRO lower bound, in approximate tokens
	MaxChunkSize int // MICRO upper bound, in approximate tokens
	OverlapCap   float64
}

// Metrics reports Phase 8's measured quality-gate inputs.
type Metrics struct {
	BoundaryF1   float64
	ChunkOverlap float64
}

// Build constructs the multi-resolution chunk graph from the policy graph
// and the normalized content stream's full text. Each policy unit that has
// no child units and is not an Indicador becomes one MESO chunk; the
// top-most ancestor of that unit (the unit itself when it has no parent)
// becomes its MACRO chunk; MICRO chunks are produced within each MESO
// chunk's byte range via sentence-boundary splitting, so chunking never
// crosses an Eje or Programa boundary by construction.
func Build(pg *policygraph.Graph, fullText string, opts Options) (Graph, Metrics, error) {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = 2048
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = 128
	}
	if opts.OverlapCap <= 0 {
		opts.OverlapCap = 0.15
	}

	leaves := leafUnits(pg)
	if len(leaves) == 0 {
		return Graph{}, Metrics{}, fmt.Errorf("chunking: policy graph has no leaf units to chunk")
	}

	sort.Slice(leaves, func(i, j int) bool { return leaves[i].ByteStart < leaves[j].ByteStart })

	overlapTokens := int(float64(opts.MaxChunkSize) * opts.OverlapCap)
	splitter, err := textsplitters.NewFromConfig(textsplitters.Config{
		Kind: textsplitters.KindSentences,
		Boundary: textsplitters.BoundaryConfig{
			Unit:    textsplitters.UnitTokens,
			Size:    opts.MaxChunkSize,
			Overlap: overlapTokens,
		},
	})
	if err != nil {
		return Graph{}, Metrics{}, fmt.Errorf("chunking: build splitter: %w", err)
	}

	var g Graph
	var macroOrder []string
	macroOf := make(map[string]string) // leaf id -> macro id
	var totalOverlapRatio float64
	var microCount int

	for _, leaf := range leaves {
		macroID, err := ensureMacro(&g, pg, leaf, macroOf, &macroOrder)
		if err != nil {
			return Graph{}, Metrics{}, err
		}

		mesoID := fmt.Sprintf("MESO-%s", leaf.ID)
		text := safeSlice(fullText, leaf.ByteStart, leaf.ByteEnd)
		meso := Chunk{
			ID:         mesoID,
			Text:       text,
			Resolution: ResolutionMeso,
			ByteStart:  leaf.ByteStart,
			ByteEnd:    leaf.ByteEnd,
			ContentHash: contentstore.Digest([]byte(text)),
		}
		g.Chunks = append(g.Chunks, meso)
		g.Edges = append(g.Edges, Edge{From: macroID, To: mesoID, Type: EdgeContains})

		segments := splitter.Split(text)
		if len(segments) == 0 {
			segments = []string{text}
		}

		cursor := leaf.ByteStart
		var prevSegEnd int64
		var microIDs []string
		for i, seg := range segments {
			segStart := cursor
			segEnd := segStart + int64(len(seg))
			if segEnd > leaf.ByteEnd {
				segEnd = leaf.ByteEnd
			}
			microID := fmt.Sprintf("%s-MICRO-%04d", mesoID, i)
			micro := Chunk{
				ID:         microID,
				Text:       seg,
				Resolution: ResolutionMicro,
				ByteStart:  segStart,
				ByteEnd:    segEnd,
				ContentHash: contentstore.Digest([]byte(seg)),
			}
			g.Chunks = append(g.Chunks, micro)
			g.Edges = append(g.Edges, Edge{From: mesoID, To: microID, Type: EdgeContains})
			microIDs = append(microIDs, microID)
			microCount++

			// Overlap ratio estimate: shared byte span with the previous
			// segment over the segment's own length.
			if i > 0 {
				overlapBytes := prevSegEnd - segStart
				if overlapBytes > 0 && len(seg) > 0 {
					totalOverlapRatio += float64(overlapBytes) / float64(len(seg))
				}
			}
			prevSegEnd = segEnd
			cursor = segEnd - int64(overlapTokens*4) // heuristic character width per token
			if cursor < segStart {
				cursor = segStart
			}
		}

		for i := 0; i+1 < len(microIDs); i++ {
			g.Edges = append(g.Edges, Edge{From: microIDs[i], To: microIDs[i+1], Type: EdgePrecedes})
		}
	}

	for i := 0; i+1 < len(macroOrder); i++ {
		g.Edges = append(g.Edges, Edge{From: macroOrder[i], To: macroOrder[i+1], Type: EdgePrecedes})
	}

	if err := validateNesting(g); err != nil {
		return Graph{}, Metrics{}, err
	}

	avgOverlap := 0.0
	if microCount > 1 {
		avgOverlap = totalOverlapRatio / float64(microCount-1)
	}

	metrics := Metrics{
		BoundaryF1:   estimateBoundaryF1(g),
		ChunkOverlap: avgOverlap,
	}
	return g, metrics, nil
}

func leafUnits(pg *policygraph.Graph) []policygraph.Unit {
	hasChildren := make(map[string]bool)
	for _, u := range pg.Units {
		if u.ParentID != "" {
			hasChildren[u.ParentID] = false
		}
	}
	for _, u := range pg.Units {
		if hasChildren2(pg, u.ID) {
			hasChildren[u.ID] = true
		}
	}
	var leaves []policygraph.Unit
	for _, u := range pg.Units {
		if u.Kind == policygraph.KindIndicador {
			continue
		}
		if !hasChildren[u.ID] {
			leaves = append(leaves, u)
		}
	}
	return leaves
}

func hasChildren2(pg *policygraph.Graph, id string) bool {
	return len(pg.ChildrenOf(id)) > 0
}

func ensureMacro(g *Graph, pg *policygraph.Graph, leaf policygraph.Unit, macroOf map[string]string, order *[]string) (string, error) {
	root := leaf
	for root.ParentID != "" {
		parent, ok := findUnit(pg, root.ParentID)
		if !ok {
			break
		}
		root = parent
	}
	macroID := fmt.Sprintf("MACRO-%s", root.ID)
	if _, exists := macroOf[root.ID]; exists {
		return macroID, nil
	}
	g.Chunks = append(g.Chunks, Chunk{
		ID:         macroID,
		Text:       root.Label,
		Resolution: ResolutionMacro,
		ByteStart:  root.ByteStart,
		ByteEnd:    root.ByteEnd,
		ContentHash: contentstore.Digest([]byte(root.ID)),
	})
	macroOf[root.ID] = macroID
	*order = append(*order, macroID)
	return macroID, nil
}

func findUnit(pg *policygraph.Graph, id string) (policygraph.Unit, bool) {
	for _, u := range pg.Units {
		if u.ID == id {
			return u, true
		}
	}
	return policygraph.Unit{}, false
}

func safeSlice(s string, start, end int64) string {
	if start < 0 {
		start = 0
	}
	if end > int64(len(s)) {
		end = int64(len(s))
	}
	if start >= end {
		return ""
	}
	return strings.TrimSpace(s[start:end])
}

// validateNesting enforces that every chunk except a MACRO root is the
// target of at least one CONTAINS edge.
func validateNesting(g Graph) error {
	contained := make(map[string]bool)
	for _, e := range g.Edges {
		if e.Type == EdgeContains {
			contained[e.To] = true
		}
	}
	for _, c := range g.Chunks {
		if c.Resolution == ResolutionMacro {
			continue
		}
		if !contained[c.ID] {
			return fmt.Errorf("chunking: chunk %s is not contained by any parent", c.ID)
		}
	}
	return nil
}

// estimateBoundaryF1 returns the fraction of MICRO chunks whose trimmed text
// ends with a sentence terminator ('.', '!' or '?'), as a proxy for the
// boundary_f1 quality gate metric.
func estimateBoundaryF1(g Graph) float64 {
	var micro []Chunk
	for _, c := range g.Chunks {
		if c.Resolution == ResolutionMicro {
			micro = append(micro, c)
		}
	}
	if len(micro) == 0 {
		return 1.0
	}
	good := 0
	for _, c := range micro {
		trimmed := strings.TrimSpace(c.Text)
		if trimmed == "" {
			continue
		}
		last := trimmed[len(trimmed)-1]
		if last == '.' || last == '!' || last == '?' || last == '\n' {
			good++
		}
	}
	return float64(good) / float64(len(micro))
}
