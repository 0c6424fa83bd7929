// Package executor implements Executor Dispatch & Method Sequences: for
// each of the 30 base slots, a fixed declarative method sequence drawn from
// the analysis library, dispatched with table-driven argument resolution
// and per-class memory-safety caps.
package executor

import (
	"fmt"
	"regexp"
	"strings"

	"policypipeline/internal/argctx"
	"policypipeline/internal/config"
	"policypipeline/internal/monolith"
)

// Class names an executor memory-safety class.
type Class string

const (
	ClassEntity       Class = "entity"
	ClassDAG          Class = "dag"
	ClassCausalEffect Class = "causal_effect"
	ClassSemantic     Class = "semantic"
	ClassFinancial    Class = "financial"
	ClassGeneric      Class = "generic"
)

// Method is one (class-name, method-name) pair with its implementation and
// the alias-group parameter names it needs resolved from the
// ArgumentContext.
type Method struct {
	ClassName  string
	MethodName string
	MemClass   Class
	Params     []string
	Fn         func(ctx *argctx.ArgumentContext, patterns []monolith.Pattern, signals []monolith.Pattern) (map[string]any, error)
}

func (m Method) Key() string { return m.ClassName + "." + m.MethodName }

// analysis library: the named functions method sequences reference. Each
// returns a fragment of the evidence dict that the dispatcher merges into
// the task's accumulated evidence.

func patternDetector(ctx *argctx.ArgumentContext, patterns []monolith.Pattern, _ []monolith.Pattern) (map[string]any, error) {
	matches := 0
	var hitIDs []string
	for _, p := range patterns {
		if patternMatches(p, ctx.Text) {
			matches++
			hitIDs = append(hitIDs, p.ID)
		}
	}
	return map[string]any{"pattern_matches": matches, "matched_pattern_ids": hitIDs}, nil
}

func patternMatches(p monolith.Pattern, text string) bool {
	if p.Text == "" {
		return false
	}
	if p.MatchMode == "regex" {
		re, err := regexp.Compile(p.Text)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(p.Text))
}

func bayesianNumericalEvidence(ctx *argctx.ArgumentContext, _ []monolith.Pattern, _ []monolith.Pattern) (map[string]any, error) {
	numberRe := regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	matches := numberRe.FindAllString(ctx.Text, -1)
	return map[string]any{"numerical_claims": len(matches)}, nil
}

func causalChainExtractor(ctx *argctx.ArgumentContext, _ []monolith.Pattern, _ []monolith.Pattern) (map[string]any, error) {
	causalRe := regexp.MustCompile(`(?i)\b(porque|debido a|conduce a|genera|resulta en)\b`)
	links := len(causalRe.FindAllString(ctx.Text, -1))
	if links > 0 {
		ctx.Graph = &argctx.CausalGraph{Source: "premise", Target: "outcome"}
	}
	return map[string]any{"causal_links": links}, nil
}

func coherenceEvaluator(ctx *argctx.ArgumentContext, _ []monolith.Pattern, _ []monolith.Pattern) (map[string]any, error) {
	contradictionRe := regexp.MustCompile(`(?i)\b(sin embargo|no obstante|pero)\b`)
	contradictions := len(contradictionRe.FindAllString(ctx.Text, -1))
	return map[string]any{"contradiction_count": contradictions}, nil
}

func baselineFormalizer(ctx *argctx.ArgumentContext, patterns []monolith.Pattern, signals []monolith.Pattern) (map[string]any, error) {
	formalized := 0
	for _, s := range signals {
		if s.Category == "baseline" || s.Category == "formalization" {
			formalized++
		}
	}
	return map[string]any{"formalized_baselines": formalized}, nil
}

func budgetTraceability(ctx *argctx.ArgumentContext, _ []monolith.Pattern, _ []monolith.Pattern) (map[string]any, error) {
	currencyRe := regexp.MustCompile(`(?i)(COP|USD|\$)\s?[\d.,]+`)
	amounts := len(currencyRe.FindAllString(ctx.Text, -1))
	return map[string]any{"budget_references": amounts}, nil
}

func mechanismInference(ctx *argctx.ArgumentContext, _ []monolith.Pattern, signals []monolith.Pattern) (map[string]any, error) {
	plausibility := 0.0
	if len(signals) > 0 {
		var sum float64
		for _, s := range signals {
			sum += s.ConfidenceWeight
		}
		plausibility = sum / float64(len(signals))
	}
	return map[string]any{"mechanism_plausibility": plausibility}, nil
}

func evidentialTest(ctx *argctx.ArgumentContext, patterns []monolith.Pattern, _ []monolith.Pattern) (map[string]any, error) {
	var confSum float64
	for _, p := range patterns {
		confSum += p.ConfidenceWeight
	}
	conf := 0.0
	if len(patterns) > 0 {
		conf = confSum / float64(len(patterns))
	}
	return map[string]any{"confidence": conf}, nil
}

func elementCounter(ctx *argctx.ArgumentContext, patterns []monolith.Pattern, signals []monolith.Pattern) (map[string]any, error) {
	elements := make([]string, 0, len(patterns)+len(signals))
	for _, p := range patterns {
		elements = append(elements, p.ID)
	}
	for _, s := range signals {
		elements = append(elements, s.ID)
	}
	return map[string]any{"elements": elements}, nil
}

// library indexes every named method by its Key().
var library = buildLibrary()

func buildLibrary() map[string]Method {
	methods := []Method{
		{ClassName: "PatternDetector", MethodName: "detect", MemClass: ClassSemantic, Params: []string{"text"}, Fn: patternDetector},
		{ClassName: "BayesianEvidence", MethodName: "numericalClaims", MemClass: ClassGeneric, Params: []string{"text"}, Fn: bayesianNumericalEvidence},
		{ClassName: "CausalChainExtractor", MethodName: "extract", MemClass: ClassDAG, Params: []string{"text"}, Fn: causalChainExtractor},
		{ClassName: "CoherenceEvaluator", MethodName: "evaluate", MemClass: ClassSemantic, Params: []string{"text"}, Fn: coherenceEvaluator},
		{ClassName: "BaselineFormalizer", MethodName: "formalize", MemClass: ClassEntity, Params: []string{"text"}, Fn: baselineFormalizer},
		{ClassName: "BudgetTraceability", MethodName: "trace", MemClass: ClassFinancial, Params: []string{"text"}, Fn: budgetTraceability},
		{ClassName: "MechanismInference", MethodName: "infer", MemClass: ClassCausalEffect, Params: []string{"text"}, Fn: mechanismInference},
		{ClassName: "BeachEvidentialTest", MethodName: "test", MemClass: ClassGeneric, Params: []string{"text"}, Fn: evidentialTest},
		{ClassName: "ElementCounter", MethodName: "count", MemClass: ClassGeneric, Params: []string{"text"}, Fn: elementCounter},
	}
	m := make(map[string]Method, len(methods))
	for _, meth := range methods {
		m[meth.Key()] = meth
	}
	return m
}

// Lookup returns a registered method by its (class, method) key.
func Lookup(key string) (Method, bool) {
	m, ok := library[key]
	return m, ok
}

// CapFor returns the configured byte cap for a memory-safety class.
func CapFor(caps config.ExecutorMemoryCaps, c Class) int64 {
	switch c {
	case ClassEntity:
		return caps.EntityBytes
	case ClassDAG:
		return caps.DAGBytes
	case ClassCausalEffect:
		return caps.CausalEffectBytes
	case ClassSemantic:
		return caps.SemanticBytes
	case ClassFinancial:
		return caps.FinancialBytes
	default:
		return caps.GenericBytes
	}
}

// EstimateSize estimates the in-memory size of an argument before passing
// it to a method, used to decide whether truncation is required.
func EstimateSize(v any) int64 {
	switch val := v.(type) {
	case string:
		return int64(len(val))
	case []string:
		var total int64
		for _, s := range val {
			total += int64(len(s))
		}
		return total
	case map[string]any:
		var total int64
		for k, vv := range val {
			total += int64(len(k)) + EstimateSize(vv)
		}
		return total
	default:
		return int64(len(fmt.Sprintf("%v", val)))
	}
}
