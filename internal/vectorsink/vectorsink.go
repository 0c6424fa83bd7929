// Package vectorsink stores a lightweight lexical embedding for every
// chunk produced by Phase 8, so chunk text is retrievable by nearest
// neighbor alongside the canonical packed CPP. It is an optional sink: a
// document run's success never depends on it.
package vectorsink

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"policypipeline/internal/chunking"
	"policypipeline/internal/config"
)

// Sink wraps a Qdrant collection scoped to one chunk-embedding dimension.
type Sink struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// Open connects to Qdrant and ensures the configured collection exists
// with a cosine-distance vector space of dimension dims.
func Open(ctx context.Context, cfg config.QdrantConfig, dims int) (*Sink, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vectorsink: collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: cfg.Addr})
	if err != nil {
		return nil, fmt.Errorf("vectorsink: connect: %w", err)
	}

	s := &Sink{client: client, collection: cfg.Collection, dimension: dims}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("vectorsink: check collection: %w", err)
	}
	if exists {
		return nil
	}
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Close releases the client.
func (s *Sink) Close() { s.client.Close() }

// UpsertChunk embeds and stores one chunk, keyed by a deterministic UUID
// derived from the chunk's own id so re-running a document is idempotent.
func (s *Sink) UpsertChunk(ctx context.Context, c chunking.Chunk, vector []float32) error {
	pointID := qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.ID)).String())
	payload := qdrant.NewValueMap(map[string]any{
		"chunk_id":       c.ID,
		"resolution":     string(c.Resolution),
		"policy_area_id": c.PolicyAreaID,
		"dimension_id":   c.DimensionID,
		"content_hash":   c.ContentHash,
	})
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{
			{Id: pointID, Vectors: qdrant.NewVectorsDense(vector), Payload: payload},
		},
	})
	return err
}

// HashEmbed produces a deterministic bag-of-character-shingles embedding
// for a chunk's text, giving the sink something real to store without
// depending on an external embedding model the pipeline never calls.
func HashEmbed(text string, dims int) []float32 {
	vec := make([]float32, dims)
	if dims == 0 {
		return vec
	}
	shingle := 3
	runes := []rune(text)
	for i := 0; i+shingle <= len(runes); i++ {
		h := fnv32(string(runes[i : i+shingle]))
		vec[int(h)%dims] += 1
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1) / sqrtf32(norm)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for _, b := range []byte(s) {
		h ^= uint32(b)
		h *= prime
	}
	return h
}

func sqrtf32(v float32) float32 {
	x := v
	for i := 0; i < 20; i++ {
		x = 0.5 * (x + v/x)
	}
	return x
}
