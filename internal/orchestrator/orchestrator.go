// Package orchestrator sequences the nine ingestion phases and the
// downstream irrigation/execution/scoring/aggregation/manifest pipeline for
// a single document, and runs a bounded one-document-per-worker pool across
// many documents.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"policypipeline/internal/aggregation"
	"policypipeline/internal/chunking"
	"policypipeline/internal/chunkmatrix"
	"policypipeline/internal/columnarstore"
	"policypipeline/internal/config"
	"policypipeline/internal/contentstore"
	"policypipeline/internal/cpp"
	"policypipeline/internal/diagnostic"
	"policypipeline/internal/eventbus"
	"policypipeline/internal/executor"
	"policypipeline/internal/irrigation"
	"policypipeline/internal/manifest"
	"policypipeline/internal/monolith"
	"policypipeline/internal/observability"
	"policypipeline/internal/ocr"
	"policypipeline/internal/parser"
	"policypipeline/internal/pgstore"
	"policypipeline/internal/policygraph"
	"policypipeline/internal/provenance"
	"policypipeline/internal/scoring"
	"policypipeline/internal/signalregistry"
	"policypipeline/internal/tables"
	"policypipeline/internal/textnorm"
	"policypipeline/internal/vectorsink"
)

// Metrics is the subset of telemetry.OtelMetrics/telemetry.MockMetrics a
// run reports counters and histograms to. A nil Metrics is a no-op.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// Sinks groups the optional downstream persistence backends a run mirrors
// its output into. Every field is nilable; a nil sink is simply skipped, so
// a run never depends on any of them to succeed.
type Sinks struct {
	Audit      *pgstore.Store
	Events     *eventbus.Publisher
	Columnar   *columnarstore.Mirror
	Vectors    *vectorsink.Sink
	VectorDims int
	Metrics    Metrics
}

// Dependencies groups the shared, immutable components every document run
// consults: the content store backend, the parser adapter registry, the
// loaded question monolith, and the signal registry. Workers share only
// these; no other mutable state crosses a document boundary.
type Dependencies struct {
	Content  *contentstore.Store
	Parsers  *parser.Registry
	Monolith *monolith.Monolith
	Signals  *signalregistry.Registry
	Config   config.Config
	Sinks    Sinks
}

// Job describes one document to run through the pipeline.
type Job struct {
	Data          []byte
	Title         string
	PolicyUnitID  string
	CorrelationID string
}

// Result is the outcome of one document run.
type Result struct {
	Job      Job
	Manifest manifest.Manifest
	CPP      cpp.CPP
	Err      error
}

// RunOne executes phases 1-9 plus irrigation, execution, scoring,
// aggregation, and manifest assembly for a single document. It aborts at
// the first hard failure. A quality-gate breach is returned as a typed
// data-contract diagnostic; every other failure (including a chunk-matrix
// contract violation or an execution-plan cardinality mismatch) is returned
// as a wrapped error naming the phase.
func RunOne(ctx context.Context, deps Dependencies, job Job) (manifest.Manifest, cpp.CPP, error) {
	log := observability.LoggerWithTrace(ctx)
	cfg := deps.Config

	// Phase 1: acquire.
	contentManifest, err := deps.Content.Acquire(ctx, job.Data, job.Title)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 1 acquire: %w", err)
	}
	raw, err := deps.Content.Fetch(ctx, contentManifest)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 1 fetch: %w", err)
	}

	// Phase 2: decompose.
	tree, err := deps.Parsers.Decompose(contentManifest.MIME, raw)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 2 decompose: %w", err)
	}

	// Phase 4: normalize.
	pages := make([]textnorm.PageText, len(tree.Pages))
	for i, p := range tree.Pages {
		pages[i] = textnorm.PageText{PageID: p.ID, Text: p.Text}
	}
	stream, err := textnorm.Normalize(pages)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 4 normalize: %w", err)
	}
	fullText := stream.FullText()

	// Phase 3: policy-graph detection.
	pg, err := policygraph.Detect(fullText, 0)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 3 policy graph: %w", err)
	}

	// Phase 5: OCR gate. Triggered only when a page's measured layout
	// confidence or text density falls below the configured thresholds; an
	// adapter that already supplies full-confidence text (PlainTextAdapter)
	// never trips it. No OCR engine is wired (an external collaborator per
	// the ocr package's own contract), so a triggered page is recorded as
	// a diagnostic rather than aborting the run.
	for _, p := range tree.Pages {
		if ocr.ShouldTrigger(p.LayoutConfidence, p.TextDensity, cfg.OCRLayoutTriggerThreshold, cfg.OCRDensityTriggerThreshold) {
			log.Warn().Int("page_id", p.ID).Float64("layout_confidence", p.LayoutConfidence).Float64("text_density", p.TextDensity).Msg("phase 5 ocr gate triggered with no ocr engine configured")
		}
	}

	// Phase 6/7: table classification and provenance. Best-effort: no table
	// candidates on a plain-text source yields an empty subgraph rather than
	// a failure.
	var rawRows []tables.RawRow
	for _, p := range tree.Pages {
		for ti, tc := range p.TableCandidates {
			for ri, row := range tc.Rows {
				cells := make(map[string]string, len(row))
				for ci, v := range row {
					cells[fmt.Sprintf("col%d", ci)] = v
				}
				rawRows = append(rawRows, tables.RawRow{ChunkID: fmt.Sprintf("p%d-t%d-r%d", p.ID, ti, ri), Cells: cells})
			}
		}
	}
	tableSubgraph, err := tables.Classify(rawRows, 0.02)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 6 table classification: %w", err)
	}

	provMap := provenance.NewMap()

	// Phase 8: chunking.
	chunkOpts := chunking.Options{MinChunkSize: cfg.MinChunkSize, MaxChunkSize: cfg.MaxChunkSize, OverlapCap: cfg.OverlapCap}
	graph, chunkMetrics, err := chunking.Build(pg, fullText, chunkOpts)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 8 chunking: %w", err)
	}

	quality := cpp.QualityMetrics{
		ProvenanceCompleteness: provMap.Completeness(nil),
		StructuralConsistency:  1.0,
		KPILinkageRate:         tables.LinkageRate(tableSubgraph.KPIs),
		BudgetConsistencyScore: tables.ConsistencyScore(tableSubgraph.Budgets, 0.02),
		BoundaryF1:             chunkMetrics.BoundaryF1,
		ChunkOverlap:           chunkMetrics.ChunkOverlap,
	}
	if len(tableSubgraph.KPIs) == 0 {
		quality.KPILinkageRate = 1.0
	}
	if len(tableSubgraph.Budgets) == 0 {
		quality.BudgetConsistencyScore = 1.0
	}

	// Phase 9: pack.
	packed, err := cpp.Pack(contentManifest, pg, stream, provMap, graph, quality)
	if err != nil {
		return manifest.Manifest{}, cpp.CPP{}, fmt.Errorf("orchestrator: phase 9 pack: %w", err)
	}

	if failures := cpp.EvaluateGates(quality); len(failures) > 0 {
		d := diagnostic.DataContract("phase9.gates", fmt.Sprintf("quality gate failure: %v", failures), map[string]string{
			"policy_unit_id": job.PolicyUnitID,
			"correlation_id": job.CorrelationID,
		}).WithCorrelation(job.CorrelationID)
		log.Error().Interface("failures", failures).Msg("quality gates failed; aborting run")
		return manifest.Manifest{}, packed, d
	}

	matrix, err := chunkmatrix.Build(graph.Chunks)
	if err != nil {
		report := chunkmatrix.ValidateContract(graph.Chunks)
		return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: chunk matrix: %w (errors=%d)", err, report.TotalErrors)
	}

	// Irrigation: route every question, resolve signals, build the plan.
	questions := deps.Monolith.SortedQuestions()
	now := time.Now().UTC()

	var tasks []irrigation.ExecutableTask

	type prepared struct {
		task     irrigation.ExecutableTask
		routing  irrigation.ChunkRoutingResult
		patterns []monolith.Pattern
		signals  []irrigation.ResolvedSignal
		question monolith.Question
	}
	var preparedTasks []prepared

	for _, q := range questions {
		routing, err := irrigation.RouteChunk(q, matrix)
		if err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: irrigation route: %w", err)
		}
		filtered, _, err := irrigation.FilterPatterns(q, routing)
		if err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: irrigation filter: %w", err)
		}
		resolved, _, err := irrigation.ResolveSignals(q, routing, deps.Signals)
		if err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: irrigation resolve signals: %w", err)
		}
		if err := irrigation.CheckSchemaCompatibility(q.ExpectedElements, routing.ExpectedElements); err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: irrigation schema compatibility: %w", err)
		}
		task, err := irrigation.NewExecutableTask(q, routing, filtered, resolved, job.CorrelationID, now)
		if err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: irrigation task: %w", err)
		}
		tasks = append(tasks, task)
		preparedTasks = append(preparedTasks, prepared{task: task, routing: routing, patterns: filtered, signals: resolved, question: q})
	}

	plan, err := irrigation.NewExecutionPlan(tasks)
	if err != nil {
		return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: execution plan: %w", err)
	}

	// Execution and scoring, in sorted question_global order.
	sort.Slice(preparedTasks, func(i, j int) bool {
		return preparedTasks[i].question.QuestionGlobal < preparedTasks[j].question.QuestionGlobal
	})

	var scored []scoring.ScoredResult
	var evidenceHashes []string
	thresholds := scoring.DefaultThresholds()

	for _, p := range preparedTasks {
		signalPatterns := make([]monolith.Pattern, len(p.signals))
		for i, rs := range p.signals {
			signalPatterns[i] = rs.Pattern
		}

		evLog, err := executor.Dispatch(p.task, p.routing.TextContent, p.patterns, signalPatterns, cfg.ExecutorMemoryCaps)
		if err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: dispatch task %s: %w", p.task.TaskID(), err)
		}
		if deps.Sinks.Metrics != nil {
			for range evLog.Truncations {
				deps.Sinks.Metrics.IncCounter("executor_truncations_total", map[string]string{"base_slot": evLog.BaseSlot})
			}
		}

		result, err := scoring.Score(p.question.Modality, evLog.Evidence, thresholds, struct {
			Global       int
			BaseSlot     string
			PolicyAreaID string
			DimensionID  string
		}{p.question.QuestionGlobal, p.question.BaseSlot, p.question.PolicyAreaID, p.question.DimensionID}, now)
		if err != nil {
			return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: score task %s: %w", p.task.TaskID(), err)
		}
		scored = append(scored, result)
		evidenceHashes = append(evidenceHashes, result.EvidenceHash)
		if deps.Sinks.Metrics != nil {
			deps.Sinks.Metrics.ObserveHistogram("scoring_normalized", result.Normalized, map[string]string{"modality": result.Modality})
		}
	}

	// Aggregation.
	byDim := make(map[string][]scoring.ScoredResult)
	for _, r := range scored {
		key := r.PolicyAreaID + "|" + r.DimensionID
		byDim[key] = append(byDim[key], r)
	}

	var dimScores []aggregation.DimensionScore
	dimKeys := make([]string, 0, len(byDim))
	for k := range byDim {
		dimKeys = append(dimKeys, k)
	}
	sort.Strings(dimKeys)
	for _, k := range dimKeys {
		results := byDim[k]
		d, err := aggregation.AggregateDimension(results[0].PolicyAreaID, results[0].DimensionID, results, nil, cfg.AbortOnInsufficientCoverage)
		if err != nil {
			if cfg.AbortOnInsufficientCoverage {
				return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: dimension aggregation: %w", err)
			}
			log.Warn().Err(err).Msg("dimension coverage warning")
			continue
		}
		dimScores = append(dimScores, d)
	}

	byPA := make(map[string][]aggregation.DimensionScore)
	for _, d := range dimScores {
		byPA[d.PolicyAreaID] = append(byPA[d.PolicyAreaID], d)
	}
	paKeys := make([]string, 0, len(byPA))
	for k := range byPA {
		paKeys = append(paKeys, k)
	}
	sort.Strings(paKeys)

	var paScores []aggregation.PolicyAreaScore
	for _, k := range paKeys {
		pa, err := aggregation.AggregatePolicyArea(k, byPA[k], nil, cfg.AbortOnInsufficientCoverage)
		if err != nil {
			if cfg.AbortOnInsufficientCoverage {
				return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: policy area aggregation: %w", err)
			}
			continue
		}
		paScores = append(paScores, pa)
	}

	overall, err := aggregation.AggregateOverall(paScores, nil, cfg.AbortOnInsufficientCoverage)
	if err != nil {
		return manifest.Manifest{}, packed, fmt.Errorf("orchestrator: overall aggregation: %w", err)
	}

	gatesPassed := len(cpp.EvaluateGates(quality)) == 0

	result := manifest.Build(manifest.Inputs{
		GatesPassed:         gatesPassed,
		TaskCount:           plan.Len(),
		EvidenceHashes:      evidenceHashes,
		SourceHash:          contentManifest.SourceHash,
		CPPMerkleRoot:       packed.Integrity.MerkleRoot,
		ExecutionPlanHash:   plan.IntegrityHash(),
		Overall:             overall,
		DimensionScoreCount: len(dimScores),
		CorrelationID:       job.CorrelationID,
	}, now)

	if deps.Sinks.Metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		deps.Sinks.Metrics.IncCounter("runs_total", map[string]string{"outcome": outcome, "policy_unit_id": job.PolicyUnitID})
	}

	mirrorToSinks(ctx, deps.Sinks, job, stream, provMap, graph, result, log)

	return result, packed, nil
}

// mirrorToSinks pushes a completed run's outputs into whichever optional
// backends were configured. Every call is best-effort: a sink failure is
// logged and never turns a successful run into a failed one.
func mirrorToSinks(ctx context.Context, sinks Sinks, job Job, stream textnorm.ContentStream, provMap *provenance.Map, graph chunking.Graph, m manifest.Manifest, log *zerolog.Logger) {
	if sinks.Audit != nil {
		if err := sinks.Audit.SaveManifest(ctx, job.PolicyUnitID, m); err != nil {
			log.Warn().Err(err).Msg("audit sink: save manifest failed")
		}
	}
	if sinks.Events != nil {
		if err := sinks.Events.PublishRunSummary(ctx, job.PolicyUnitID, m); err != nil {
			log.Warn().Err(err).Msg("event sink: publish run summary failed")
		}
	}
	if sinks.Columnar != nil {
		if err := sinks.Columnar.WriteContentStream(ctx, job.CorrelationID, stream); err != nil {
			log.Warn().Err(err).Msg("columnar sink: write content stream failed")
		}
		if err := sinks.Columnar.WriteProvenanceMap(ctx, job.CorrelationID, provMap); err != nil {
			log.Warn().Err(err).Msg("columnar sink: write provenance map failed")
		}
	}
	if sinks.Vectors != nil {
		for _, c := range graph.Chunks {
			vec := vectorsink.HashEmbed(c.Text, sinks.VectorDims)
			if err := sinks.Vectors.UpsertChunk(ctx, c, vec); err != nil {
				log.Warn().Err(err).Str("chunk_id", c.ID).Msg("vector sink: upsert chunk failed")
				break
			}
		}
	}
}

// RunMany runs each job through RunOne with one worker per document,
// bounded by maxWorkers. Results are returned in job-submission order
// regardless of completion order, so downstream consumers see deterministic
// ordering.
func RunMany(ctx context.Context, deps Dependencies, jobs []Job, maxWorkers int) []Result {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]Result, len(jobs))
	indices := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				select {
				case <-ctx.Done():
					results[i] = Result{Job: jobs[i], Err: ctx.Err()}
					continue
				default:
				}
				m, c, err := RunOne(ctx, deps, jobs[i])
				results[i] = Result{Job: jobs[i], Manifest: m, CPP: c, Err: err}
			}
		}()
	}

	go func() {
		for i := range jobs {
			indices <- i
		}
		close(indices)
	}()

	wg.Wait()
	return results
}
