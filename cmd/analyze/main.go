// Command analyze runs a single document through the Canon Policy Package
// ingestion and scoring pipeline and writes the Verification Manifest to
// disk.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"policypipeline/internal/columnarstore"
	"policypipeline/internal/config"
	"policypipeline/internal/contentstore"
	"policypipeline/internal/eventbus"
	"policypipeline/internal/monolith"
	"policypipeline/internal/objectstore"
	"policypipeline/internal/observability"
	"policypipeline/internal/orchestrator"
	"policypipeline/internal/parser"
	"policypipeline/internal/pgstore"
	"policypipeline/internal/signalregistry"
	"policypipeline/internal/telemetry"
	"policypipeline/internal/vectorsink"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	policyUnitID := fs.String("policy-unit-id", "", "policy unit identifier (required)")
	correlationID := fs.String("correlation-id", "", "correlation id (defaults to a generated uuid)")
	outDir := fs.String("out", ".", "directory to write the verification manifest into")
	monolithPath := fs.String("monolith", "", "path to the question monolith JSON (required)")
	configPath := fs.String("config", "", "optional YAML config file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: analyze <document> --policy-unit-id <id> --monolith <path> [--correlation-id <uuid>] [--out <dir>]")
		return 2
	}
	documentPath := fs.Arg(0)

	if *policyUnitID == "" || *monolithPath == "" {
		fmt.Fprintln(os.Stderr, "analyze: --policy-unit-id and --monolith are required")
		return 2
	}
	if *correlationID == "" {
		*correlationID = uuid.NewString()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: load config: %v\n", err)
		return 1
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel, cfg.OTel.Enabled)

	data, err := os.ReadFile(documentPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: read document: %v\n", err)
		return 1
	}

	mono, err := monolith.Load(*monolithPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: load monolith: %v\n", err)
		return 1
	}

	sigRegistry, err := signalregistry.New(mono, cfg.SignalCacheSize, cfg.SignalCacheTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: build signal registry: %v\n", err)
		return 1
	}
	if cfg.Redis.Addr != "" {
		sigRegistry = sigRegistry.WithRemoteCache(signalregistry.NewRedisCache(cfg.Redis, cfg.SignalCacheTTL))
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: tracing setup unavailable: %v\n", err)
	} else {
		defer shutdownTracing(ctx)
	}

	backend, err := contentBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		return 1
	}
	sinks, closeSinks := buildSinks(ctx, cfg)
	sinks.Metrics = telemetry.NewOtelMetrics()
	defer closeSinks()

	deps := orchestrator.Dependencies{
		Content:  contentstore.New(backend),
		Parsers:  parser.NewRegistry(parser.PlainTextAdapter{}),
		Monolith: mono,
		Signals:  sigRegistry,
		Config:   cfg,
		Sinks:    sinks,
	}

	job := orchestrator.Job{
		Data:          data,
		Title:         filepath.Base(documentPath),
		PolicyUnitID:  *policyUnitID,
		CorrelationID: *correlationID,
	}

	result, packed, err := orchestrator.RunOne(ctx, deps, job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ABORT: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: create output dir: %v\n", err)
		return 1
	}
	manifestJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyze: marshal manifest: %v\n", err)
		return 1
	}
	outPath := filepath.Join(*outDir, "manifest.json")
	if err := os.WriteFile(outPath, manifestJSON, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: write manifest: %v\n", err)
		return 1
	}
	if err := columnarstore.WriteContentStream(*outDir, packed.Stream); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: write content stream: %v\n", err)
		return 1
	}
	if err := columnarstore.WriteProvenanceMap(*outDir, packed.Provenance); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: write provenance map: %v\n", err)
		return 1
	}

	if !result.Success {
		fmt.Fprintln(os.Stderr, "ABORT: run completed without success")
		return 1
	}
	fmt.Printf("analyze: wrote %s\n", outPath)
	return 0
}

// contentBackend selects the object store backing the content store: an S3
// (or S3-compatible) bucket when one is configured, falling back to an
// in-memory store for local single-document runs.
func contentBackend(ctx context.Context, cfg config.Config) (objectstore.ObjectStore, error) {
	if cfg.S3.Bucket == "" {
		return objectstore.NewMemoryStore(), nil
	}
	store, err := objectstore.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("build s3 object store: %w", err)
	}
	return store, nil
}

// buildSinks wires the optional audit/event/columnar-mirror/vector sinks
// from configuration. Every sink is best-effort: a connection failure logs
// a warning and leaves that sink nil rather than aborting the run.
func buildSinks(ctx context.Context, cfg config.Config) (orchestrator.Sinks, func()) {
	var sinks orchestrator.Sinks
	var closers []func()
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Postgres.DSN != "" {
		store, err := pgstore.Open(ctx, cfg.Postgres.DSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "analyze: audit sink unavailable: %v\n", err)
		} else if err := store.EnsureSchema(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "analyze: audit schema unavailable: %v\n", err)
			store.Close()
		} else {
			sinks.Audit = store
			closers = append(closers, store.Close)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		pub := eventbus.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		sinks.Events = pub
		closers = append(closers, func() { _ = pub.Close() })
	}

	if cfg.ClickHouse.Addr != "" {
		mirror, err := columnarstore.OpenMirror(ctx, cfg.ClickHouse)
		if err != nil {
			fmt.Fprintf(os.Stderr, "analyze: columnar mirror unavailable: %v\n", err)
		} else {
			sinks.Columnar = mirror
			closers = append(closers, func() { _ = mirror.Close() })
		}
	}

	if cfg.Qdrant.Addr != "" && cfg.Qdrant.Collection != "" {
		const chunkEmbeddingDims = 256
		sink, err := vectorsink.Open(ctx, cfg.Qdrant, chunkEmbeddingDims)
		if err != nil {
			fmt.Fprintf(os.Stderr, "analyze: vector sink unavailable: %v\n", err)
		} else {
			sinks.Vectors = sink
			sinks.VectorDims = chunkEmbeddingDims
			closers = append(closers, sink.Close)
		}
	}

	return sinks, closeAll
}
