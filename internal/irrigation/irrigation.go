// Package irrigation implements the Irrigation Synchronizer & Task Planner:
// an explicit six-phase state machine that materializes the 300 executable
// tasks from (300 questions, chunk matrix, signal registry) under strict
// equality and immutability contracts.
package irrigation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"policypipeline/internal/chunking"
	"policypipeline/internal/chunkmatrix"
	"policypipeline/internal/contentstore"
	"policypipeline/internal/monolith"
	"policypipeline/internal/signalregistry"
)

// SynchronizerVersion is fixed per the data model contract.
const SynchronizerVersion = "2.0.0"

// ChunkRoutingResult is Phase 3's output for one question.
type ChunkRoutingResult struct {
	TargetChunk      chunking.Chunk
	ChunkID          string
	PolicyAreaID     string
	DimensionID      string
	TextContent      string
	ExpectedElements []monolith.ExpectedElement
	DocumentPosition *[2]int64 // byte offsets, or nil
}

// normalizeDimension maps D1..D6 to DIM01..DIM06, tolerating hyphen/
// underscore variants per the canonical-identifier normalization rule.
func normalizeDimension(raw string) (string, error) {
	cleaned := strings.NewReplacer("-", "", "_", "").Replace(strings.ToUpper(raw))
	if strings.HasPrefix(cleaned, "DIM") {
		return cleaned, nil
	}
	if strings.HasPrefix(cleaned, "D") {
		n, err := strconv.Atoi(cleaned[1:])
		if err != nil || n < 1 || n > 6 {
			return "", fmt.Errorf("irrigation: invalid dimension_id %q", raw)
		}
		return fmt.Sprintf("DIM%02d", n), nil
	}
	return "", fmt.Errorf("irrigation: unrecognized dimension_id %q", raw)
}

// RouteChunk implements Phase 3. It validates the question's policy_area_id
// and dimension_id, normalizes the dimension, and performs a strict-equality
// lookup in the chunk matrix.
func RouteChunk(q monolith.Question, matrix chunkmatrix.Matrix) (ChunkRoutingResult, error) {
	if q.PolicyAreaID == "" {
		return ChunkRoutingResult{}, fmt.Errorf("irrigation: question %d missing policy_area_id", q.QuestionGlobal)
	}
	if q.DimensionID == "" {
		return ChunkRoutingResult{}, fmt.Errorf("irrigation: question %d missing dimension_id", q.QuestionGlobal)
	}

	dim, err := normalizeDimension(q.DimensionID)
	if err != nil {
		return ChunkRoutingResult{}, fmt.Errorf("irrigation: question %d: %w", q.QuestionGlobal, err)
	}

	chunk, ok := matrix.Get(q.PolicyAreaID, dim)
	if !ok {
		return ChunkRoutingResult{}, fmt.Errorf("irrigation: question %d: no chunk for (%s, %s)", q.QuestionGlobal, q.PolicyAreaID, dim)
	}
	if chunk.PolicyAreaID != q.PolicyAreaID || chunk.DimensionID != dim {
		return ChunkRoutingResult{}, fmt.Errorf("irrigation: question %d: routed chunk (%s, %s) mismatches question (%s, %s)",
			q.QuestionGlobal, chunk.PolicyAreaID, chunk.DimensionID, q.PolicyAreaID, dim)
	}
	if chunk.Text == "" {
		return ChunkRoutingResult{}, fmt.Errorf("irrigation: question %d: routed chunk %s has empty text", q.QuestionGlobal, chunk.ID)
	}

	expected := chunk.ExpectedElements
	if expected == nil {
		expected = []monolith.ExpectedElement{}
	}

	var pos *[2]int64
	if chunk.ByteEnd > chunk.ByteStart {
		pos = &[2]int64{chunk.ByteStart, chunk.ByteEnd}
	}

	return ChunkRoutingResult{
		TargetChunk:      chunk,
		ChunkID:          chunk.ID,
		PolicyAreaID:     q.PolicyAreaID,
		DimensionID:      dim,
		TextContent:      chunk.Text,
		ExpectedElements: expected,
		DocumentPosition: pos,
	}, nil
}

// FilterPatterns implements Phase 4: strict equality on a pattern's own
// policy_area_id vs. the routing result's PA. Zero filtered patterns is a
// warning, not an error; it is reported via the returned bool rather than
// causing FilterPatterns to fail.
func FilterPatterns(q monolith.Question, routing ChunkRoutingResult) ([]monolith.Pattern, bool, error) {
	if routing.PolicyAreaID == "" {
		return nil, false, fmt.Errorf("irrigation: question %d: routing target PA is empty", q.QuestionGlobal)
	}

	filtered := make([]monolith.Pattern, 0, len(q.Patterns))
	for i, p := range q.Patterns {
		if p.PolicyAreaID == "" {
			return nil, false, fmt.Errorf("irrigation: question %d: pattern %d missing policy_area_id", q.QuestionGlobal, i)
		}
		if p.PolicyAreaID == routing.PolicyAreaID {
			filtered = append(filtered, p)
		}
	}
	warnZeroFiltered := len(filtered) == 0
	return filtered, warnZeroFiltered, nil
}

// ResolvedSignal is one signal resolved in Phase 5.
type ResolvedSignal struct {
	Pattern monolith.Pattern
}

// ResolveSignals implements Phase 5: the registry is invoked per declared
// signal requirement and must return a non-nil list; missing a required
// signal is a hard stop. warnings collects duplicate-signal notices.
func ResolveSignals(q monolith.Question, routing ChunkRoutingResult, registry *signalregistry.Registry) ([]ResolvedSignal, []string, error) {
	var resolved []ResolvedSignal
	var warnings []string
	seen := make(map[string]bool)

	for _, req := range q.SignalRequirements {
		pack, err := registry.GetPack(routing.PolicyAreaID)
		if err != nil {
			return nil, nil, fmt.Errorf("irrigation: question %d: load signal pack: %w", q.QuestionGlobal, err)
		}

		ctx := signalregistry.ChunkContext{PolicyAreaID: routing.PolicyAreaID}
		patterns := registry.SignalsForChunk(routing.ChunkID, pack, ctx, []string{req.Type})
		if patterns == nil {
			if req.Required {
				return nil, nil, fmt.Errorf("irrigation: question %d: required signal type %q resolved to nil", q.QuestionGlobal, req.Type)
			}
			continue
		}
		if len(patterns) == 0 && req.Required {
			return nil, nil, fmt.Errorf("irrigation: question %d: required signal type %q resolved to zero signals", q.QuestionGlobal, req.Type)
		}

		for _, p := range patterns {
			if seen[p.ID] {
				warnings = append(warnings, fmt.Sprintf("duplicate signal %q for question %d", p.ID, q.QuestionGlobal))
				continue
			}
			seen[p.ID] = true
			resolved = append(resolved, ResolvedSignal{Pattern: p})
		}
	}

	return resolved, warnings, nil
}

// CheckSchemaCompatibility implements Phase 6's two semantic rules:
// asymmetric required-field implication (q_required -> c_required) and
// minimum-threshold ordering (c_minimum >= q_minimum). Both schemas must be
// the same kind (matching length and element-type sequence).
func CheckSchemaCompatibility(questionSchema, chunkSchema []monolith.ExpectedElement) error {
	if len(questionSchema) != len(chunkSchema) {
		return fmt.Errorf("irrigation: schema length mismatch: question has %d, chunk has %d", len(questionSchema), len(chunkSchema))
	}
	for i := range questionSchema {
		q := questionSchema[i]
		c := chunkSchema[i]
		if q.Type != c.Type {
			return fmt.Errorf("irrigation: schema element %d type mismatch: question %q vs chunk %q", i, q.Type, c.Type)
		}
		if q.Required && !c.Required {
			return fmt.Errorf("irrigation: schema element %d: question requires it but chunk does not", i)
		}
		if q.HasMin && c.HasMin && c.Minimum < q.Minimum {
			return fmt.Errorf("irrigation: schema element %d: chunk minimum %.4f below question minimum %.4f", i, c.Minimum, q.Minimum)
		}
	}
	return nil
}

// TaskMetadata is the ten-key envelope required on every ExecutableTask.
type TaskMetadata struct {
	BaseSlot              string
	ClusterID             string
	DocumentPosition      *[2]int64
	SynchronizerVersion   string
	CorrelationID         string
	OriginalPatternCount  int
	OriginalSignalCount   int
	FilteredPatternCount  int
	ResolvedSignalCount   int
	SchemaElementCount    int
}

// ExecutableTask is the irrigation output for one question. It is frozen
// once constructed by NewExecutableTask: all slice fields are copied
// defensively and never exposed for in-place mutation.
type ExecutableTask struct {
	taskID              string
	questionGlobal      int
	chunkID             string
	applicablePatterns  []monolith.Pattern
	resolvedSignals     []ResolvedSignal
	createdAt           time.Time
	synchronizerVersion string
	metadata            TaskMetadata
}

func (t ExecutableTask) TaskID() string                       { return t.taskID }
func (t ExecutableTask) QuestionGlobal() int                   { return t.questionGlobal }
func (t ExecutableTask) ChunkID() string                       { return t.chunkID }
func (t ExecutableTask) SynchronizerVersion() string           { return t.synchronizerVersion }
func (t ExecutableTask) CreatedAt() time.Time                  { return t.createdAt }
func (t ExecutableTask) Metadata() TaskMetadata                { return t.metadata }

// ApplicablePatterns returns a defensive copy; the task's own slice is never
// shared with callers, so mutating the returned slice cannot mutate the
// task (the language-level immutability the testable properties require).
func (t ExecutableTask) ApplicablePatterns() []monolith.Pattern {
	out := make([]monolith.Pattern, len(t.applicablePatterns))
	copy(out, t.applicablePatterns)
	return out
}

// ResolvedSignals returns a defensive copy.
func (t ExecutableTask) ResolvedSignals() []ResolvedSignal {
	out := make([]ResolvedSignal, len(t.resolvedSignals))
	copy(out, t.resolvedSignals)
	return out
}

// NewExecutableTask implements Phase 7. Empty routing fields propagated
// into the task abort with a specific error naming the task id.
func NewExecutableTask(q monolith.Question, routing ChunkRoutingResult, filteredPatterns []monolith.Pattern, resolvedSignals []ResolvedSignal, correlationID string, now time.Time) (ExecutableTask, error) {
	taskID := fmt.Sprintf("task-%03d-%s", q.QuestionGlobal, routing.ChunkID)

	if routing.ChunkID == "" {
		return ExecutableTask{}, fmt.Errorf("irrigation: task %s: empty chunk id", taskID)
	}
	if routing.TextContent == "" {
		return ExecutableTask{}, fmt.Errorf("irrigation: task %s: empty routed text", taskID)
	}

	patterns := make([]monolith.Pattern, len(filteredPatterns))
	copy(patterns, filteredPatterns)
	signals := make([]ResolvedSignal, len(resolvedSignals))
	copy(signals, resolvedSignals)

	meta := TaskMetadata{
		BaseSlot:             q.BaseSlot,
		ClusterID:            q.ClusterID,
		DocumentPosition:     routing.DocumentPosition,
		SynchronizerVersion:  SynchronizerVersion,
		CorrelationID:        correlationID,
		OriginalPatternCount: len(q.Patterns),
		OriginalSignalCount:  len(q.SignalRequirements),
		FilteredPatternCount: len(patterns),
		ResolvedSignalCount:  len(signals),
		SchemaElementCount:   len(q.ExpectedElements),
	}

	return ExecutableTask{
		taskID:              taskID,
		questionGlobal:      q.QuestionGlobal,
		chunkID:             routing.ChunkID,
		applicablePatterns:  patterns,
		resolvedSignals:     signals,
		createdAt:           now,
		synchronizerVersion: SynchronizerVersion,
		metadata:            meta,
	}, nil
}

// ExecutionPlan is an ordered collection of exactly 300 executable tasks
// with unique task ids and an integrity hash.
type ExecutionPlan struct {
	tasks         []ExecutableTask
	integrityHash string
}

// Tasks returns a defensive copy of the plan's tasks in construction order.
func (p ExecutionPlan) Tasks() []ExecutableTask {
	out := make([]ExecutableTask, len(p.tasks))
	copy(out, p.tasks)
	return out
}

func (p ExecutionPlan) IntegrityHash() string { return p.integrityHash }
func (p ExecutionPlan) Len() int              { return len(p.tasks) }

const requiredTaskCount = 300

// NewExecutionPlan assembles the plan, rejecting duplicate task ids or a
// size mismatch against the required 300.
func NewExecutionPlan(tasks []ExecutableTask) (ExecutionPlan, error) {
	if len(tasks) != requiredTaskCount {
		return ExecutionPlan{}, fmt.Errorf("irrigation: expected %d tasks, got %d", requiredTaskCount, len(tasks))
	}

	seen := make(map[string]bool, len(tasks))
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.taskID] {
			return ExecutionPlan{}, fmt.Errorf("irrigation: duplicate task id %q", t.taskID)
		}
		seen[t.taskID] = true
		ids = append(ids, t.taskID)
	}

	sort.Strings(ids)
	concat := strings.Join(ids, "|")
	hash := contentstore.Digest([]byte(concat))

	cp := make([]ExecutableTask, len(tasks))
	copy(cp, tasks)

	return ExecutionPlan{tasks: cp, integrityHash: hash}, nil
}
