package executor

// Sequences is the fixed table of 30 method sequences, one per base slot
// (D1Q1..D6Q5). Each entry names, in order, the library method keys the
// dispatcher invokes for that slot. The table is declarative: adding a new
// base slot never changes dispatch logic, only this table.
var Sequences = map[string][]string{
	"D1Q1": {"PatternDetector.detect", "ElementCounter.count"},
	"D1Q2": {"PatternDetector.detect", "BayesianEvidence.numericalClaims"},
	"D1Q3": {"BaselineFormalizer.formalize", "ElementCounter.count"},
	"D1Q4": {"PatternDetector.detect", "CoherenceEvaluator.evaluate"},
	"D1Q5": {"BeachEvidentialTest.test", "ElementCounter.count"},

	"D2Q1": {"CausalChainExtractor.extract", "MechanismInference.infer"},
	"D2Q2": {"CausalChainExtractor.extract", "CoherenceEvaluator.evaluate"},
	"D2Q3": {"MechanismInference.infer", "BeachEvidentialTest.test"},
	"D2Q4": {"CausalChainExtractor.extract", "ElementCounter.count"},
	"D2Q5": {"MechanismInference.infer", "ElementCounter.count"},

	"D3Q1": {"PatternDetector.detect", "BaselineFormalizer.formalize"},
	"D3Q2": {"BaselineFormalizer.formalize", "BayesianEvidence.numericalClaims"},
	"D3Q3": {"PatternDetector.detect", "ElementCounter.count"},
	"D3Q4": {"BayesianEvidence.numericalClaims", "CoherenceEvaluator.evaluate"},
	"D3Q5": {"BaselineFormalizer.formalize", "BeachEvidentialTest.test"},

	"D4Q1": {"BudgetTraceability.trace", "ElementCounter.count"},
	"D4Q2": {"BudgetTraceability.trace", "BayesianEvidence.numericalClaims"},
	"D4Q3": {"BudgetTraceability.trace", "CoherenceEvaluator.evaluate"},
	"D4Q4": {"BudgetTraceability.trace", "MechanismInference.infer"},
	"D4Q5": {"BudgetTraceability.trace", "BeachEvidentialTest.test"},

	"D5Q1": {"PatternDetector.detect", "CausalChainExtractor.extract"},
	"D5Q2": {"CoherenceEvaluator.evaluate", "ElementCounter.count"},
	"D5Q3": {"PatternDetector.detect", "CoherenceEvaluator.evaluate", "ElementCounter.count"},
	"D5Q4": {"CausalChainExtractor.extract", "CoherenceEvaluator.evaluate"},
	"D5Q5": {"BeachEvidentialTest.test", "CoherenceEvaluator.evaluate"},

	"D6Q1": {"PatternDetector.detect", "BeachEvidentialTest.test"},
	"D6Q2": {"MechanismInference.infer", "BayesianEvidence.numericalClaims"},
	"D6Q3": {"BudgetTraceability.trace", "BaselineFormalizer.formalize"},
	"D6Q4": {"CausalChainExtractor.extract", "BeachEvidentialTest.test"},
	"D6Q5": {"ElementCounter.count", "BeachEvidentialTest.test", "CoherenceEvaluator.evaluate"},
}
