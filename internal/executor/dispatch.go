package executor

import (
	"sort"
	"strconv"
	"strings"

	"policypipeline/internal/argctx"
	"policypipeline/internal/config"
	"policypipeline/internal/diagnostic"
	"policypipeline/internal/irrigation"
	"policypipeline/internal/monolith"
)

// TruncationRecord notes that a method's input was clipped to its memory
// safety cap before invocation.
type TruncationRecord struct {
	Method       string
	MemClass     Class
	OriginalSize int64
	CapBytes     int64
}

// MethodResult is one executed method's outcome within a task's sequence.
type MethodResult struct {
	Method  string
	Success bool
	Err     string
	Output  map[string]any
}

// EvidenceLog is the dispatcher's output for one executable task: the
// merged evidence dict a scorer consumes, plus the full per-method trace.
type EvidenceLog struct {
	TaskID      string
	BaseSlot    string
	ChunkID     string
	Elements    []string
	Confidence  float64
	Evidence    map[string]any
	Methods     []MethodResult
	Truncations []TruncationRecord
}

// normalizeBaseSlot strips separators so "D1-Q1" and "D1Q1" resolve to the
// same sequence table key.
func normalizeBaseSlot(raw string) string {
	return strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(raw))
}

// Dispatch runs the fixed method sequence for task's base slot against text,
// with patterns and signals available to the sequence's methods, enforcing
// per-class memory-safety caps along the way.
func Dispatch(task irrigation.ExecutableTask, text string, patterns []monolith.Pattern, signals []monolith.Pattern, caps config.ExecutorMemoryCaps) (EvidenceLog, error) {
	slot := normalizeBaseSlot(task.Metadata().BaseSlot)
	keys, ok := Sequences[slot]
	if !ok {
		return EvidenceLog{}, diagnostic.DataContract("executor.dispatch",
			"no method sequence registered for base slot", map[string]string{
				"task_id":   task.TaskID(),
				"base_slot": task.Metadata().BaseSlot,
			})
	}

	ac := argctx.New()
	ac.Text = text

	log := EvidenceLog{
		TaskID:   task.TaskID(),
		BaseSlot: task.Metadata().BaseSlot,
		ChunkID:  task.ChunkID(),
		Evidence: map[string]any{},
	}

	for _, key := range keys {
		method, ok := Lookup(key)
		if !ok {
			return EvidenceLog{}, diagnostic.System("executor.dispatch",
				"method sequence references unregistered method", map[string]string{
					"task_id": task.TaskID(),
					"method":  key,
				})
		}

		effectiveText := ac.Text
		memCap := CapFor(caps, method.MemClass)
		if size := EstimateSize(effectiveText); memCap > 0 && size > memCap {
			effectiveText = effectiveText[:memCap]
			log.Truncations = append(log.Truncations, TruncationRecord{
				Method:       key,
				MemClass:     method.MemClass,
				OriginalSize: size,
				CapBytes:     memCap,
			})
		}
		scoped := *ac
		scoped.Text = effectiveText

		out, err := method.Fn(&scoped, patterns, signals)
		ac.Graph = scoped.Graph
		result := MethodResult{Method: key, Success: err == nil}
		if err != nil {
			result.Err = err.Error()
			log.Methods = append(log.Methods, result)
			continue
		}
		result.Output = out
		log.Methods = append(log.Methods, result)
		ac.RecordOutput(key, out)

		for k, v := range out {
			log.Evidence[k] = v
		}
	}

	log.Elements = collectElements(log.Evidence)
	log.Confidence = deriveConfidence(log.Evidence)
	return log, nil
}

func collectElements(evidence map[string]any) []string {
	raw, ok := evidence["elements"]
	if !ok {
		return nil
	}
	elems, ok := raw.([]string)
	if !ok {
		return nil
	}
	out := make([]string, len(elems))
	copy(out, elems)
	sort.Strings(out)
	return out
}

func deriveConfidence(evidence map[string]any) float64 {
	if c, ok := evidence["confidence"].(float64); ok {
		return c
	}
	if mp, ok := evidence["mechanism_plausibility"].(float64); ok {
		return mp
	}
	return 0
}

// ParseBaseSlot splits a normalized "D<dim>Q<question>" slot into its
// dimension and in-dimension question numbers.
func ParseBaseSlot(slot string) (dim, question int, ok bool) {
	norm := normalizeBaseSlot(slot)
	qIdx := strings.Index(norm, "Q")
	if !strings.HasPrefix(norm, "D") || qIdx < 1 {
		return 0, 0, false
	}
	d, err1 := strconv.Atoi(norm[1:qIdx])
	q, err2 := strconv.Atoi(norm[qIdx+1:])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return d, q, true
}
