// Package scoring implements the Scoring Engine: six declarative modality
// scorers (TYPE_A..TYPE_F), each validating its evidence dict's required
// keys, computing a deterministic raw score, clamping and normalizing it,
// assigning a quality level, and canonicalizing + SHA-256-hashing the
// evidence for reproducibility.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"policypipeline/internal/diagnostic"
)

// Rounding names a decimal rounding mode fixed at config-load time.
type Rounding string

const (
	RoundHalfUp   Rounding = "HALF_UP"
	RoundHalfEven Rounding = "HALF_EVEN"
	RoundDown     Rounding = "DOWN"
)

// QualityLevel is one of the four declared score bands.
type QualityLevel string

const (
	QualityExcelente   QualityLevel = "EXCELENTE"
	QualityBueno       QualityLevel = "BUENO"
	QualityAceptable   QualityLevel = "ACEPTABLE"
	QualityInsuficiente QualityLevel = "INSUFICIENTE"
)

// Thresholds holds the three cutoffs that separate the four quality bands.
// Validate checks that they are monotonically non-increasing; Score does not
// call Validate itself.
type Thresholds struct {
	Excelente float64
	Bueno     float64
	Aceptable float64
}

// DefaultThresholds returns the thresholds named in the external interface
// contract.
func DefaultThresholds() Thresholds {
	return Thresholds{Excelente: 0.85, Bueno: 0.70, Aceptable: 0.55}
}

// Validate rejects a non-monotone threshold configuration.
func (t Thresholds) Validate() error {
	if !(t.Excelente >= t.Bueno && t.Bueno >= t.Aceptable) {
		return fmt.Errorf("scoring: thresholds must be monotonically non-increasing, got excelente=%.4f bueno=%.4f aceptable=%.4f",
			t.Excelente, t.Bueno, t.Aceptable)
	}
	return nil
}

func (t Thresholds) Classify(normalized float64) QualityLevel {
	switch {
	case normalized >= t.Excelente:
		return QualityExcelente
	case normalized >= t.Bueno:
		return QualityBueno
	case normalized >= t.Aceptable:
		return QualityAceptable
	default:
		return QualityInsuficiente
	}
}

// Modality is a declarative scoring configuration for one of TYPE_A..F.
type Modality struct {
	Name             string
	MinScore         float64
	MaxScore         float64
	MaxElements      int
	RequiredKeys     []string
	Rounding         Rounding
	RoundingPrecision int32
}

// Registry of the six fixed modality configurations.
var Modalities = map[string]Modality{
	"TYPE_A": {Name: "TYPE_A", MinScore: 0, MaxScore: 3, MaxElements: 4, RequiredKeys: []string{"elements", "confidence"}, Rounding: RoundHalfUp, RoundingPrecision: 4},
	"TYPE_B": {Name: "TYPE_B", MinScore: 0, MaxScore: 3, MaxElements: 3, RequiredKeys: []string{"causal_links", "mechanism_plausibility"}, Rounding: RoundHalfUp, RoundingPrecision: 4},
	"TYPE_C": {Name: "TYPE_C", MinScore: 0, MaxScore: 3, MaxElements: 3, RequiredKeys: []string{"contradiction_count"}, Rounding: RoundHalfEven, RoundingPrecision: 4},
	"TYPE_D": {Name: "TYPE_D", MinScore: 0, MaxScore: 3, MaxElements: 4, RequiredKeys: []string{"elements", "pattern_matches"}, Rounding: RoundHalfUp, RoundingPrecision: 4},
	"TYPE_E": {Name: "TYPE_E", MinScore: 0, MaxScore: 3, MaxElements: 4, RequiredKeys: []string{"budget_references"}, Rounding: RoundDown, RoundingPrecision: 4},
	"TYPE_F": {Name: "TYPE_F", MinScore: 0, MaxScore: 4, MaxElements: 4, RequiredKeys: []string{"mechanism_plausibility"}, Rounding: RoundHalfUp, RoundingPrecision: 4},
}

// ScoredResult is the immutable outcome of scoring one task's evidence.
type ScoredResult struct {
	QuestionGlobal int
	BaseSlot       string
	PolicyAreaID   string
	DimensionID    string
	Modality       string
	RawScore       float64
	Normalized     float64
	Quality        QualityLevel
	EvidenceHash   string
	Metadata       map[string]any
	ScoredAt       time.Time
}

// ValidationError is raised when an evidence dict is missing a modality's
// required keys; scorers never substitute a default score on this failure.
type ValidationError struct {
	Modality string
	Missing  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scoring: evidence missing required keys %v for modality %s", e.Missing, e.Modality)
}

func validateEvidence(m Modality, evidence map[string]any) error {
	var missing []string
	for _, k := range m.RequiredKeys {
		if _, ok := evidence[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Modality: m.Name, Missing: missing}
	}
	return nil
}

// canonicalJSON serializes evidence with sorted keys for stable hashing.
func canonicalJSON(evidence map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Key   string
		Value any
	}, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, struct {
			Key   string
			Value any
		}{k, evidence[k]})
	}

	buf := []byte("{")
	for i, kv := range ordered {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// EvidenceHash computes the SHA-256 of the canonical-JSON evidence dict.
func EvidenceHash(evidence map[string]any) (string, error) {
	canon, err := canonicalJSON(evidence)
	if err != nil {
		return "", fmt.Errorf("scoring: canonicalize evidence: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func round(v float64, mode Rounding, precision int32) float64 {
	d := decimal.NewFromFloat(v)
	switch mode {
	case RoundHalfEven:
		return d.RoundBank(precision).InexactFloat64()
	case RoundDown:
		return d.Truncate(precision).InexactFloat64()
	default:
		return d.Round(precision).InexactFloat64()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func elementsCount(evidence map[string]any) int {
	raw, ok := evidence["elements"]
	if !ok {
		return 0
	}
	if elems, ok := raw.([]string); ok {
		return len(elems)
	}
	return 0
}

// scoreRaw computes the raw score for one modality from its evidence dict,
// per the declared semantic role of the modality.
func scoreRaw(m Modality, evidence map[string]any) float64 {
	scale := m.MaxScore - m.MinScore

	switch m.Name {
	case "TYPE_A", "TYPE_D":
		confidence := toFloat(evidence["confidence"])
		if confidence == 0 {
			confidence = 1
		}
		count := elementsCount(evidence)
		if count == 0 {
			if pm, ok := evidence["pattern_matches"]; ok {
				count = int(toFloat(pm))
			}
		}
		completeness := float64(count) / float64(m.MaxElements)
		return confidence * completeness * scale
	case "TYPE_B":
		plausibility := toFloat(evidence["mechanism_plausibility"])
		links := toFloat(evidence["causal_links"])
		linkFactor := links / float64(m.MaxElements)
		if linkFactor > 1 {
			linkFactor = 1
		}
		return (plausibility*0.5 + linkFactor*0.5) * scale
	case "TYPE_C":
		contradictions := toFloat(evidence["contradiction_count"])
		inverted := 1.0 / (1.0 + contradictions)
		return inverted * scale
	case "TYPE_E":
		refs := toFloat(evidence["budget_references"])
		factor := refs / float64(m.MaxElements)
		if factor > 1 {
			factor = 1
		}
		return factor * scale
	case "TYPE_F":
		plausibility := toFloat(evidence["mechanism_plausibility"])
		return plausibility * scale
	default:
		return 0
	}
}

// Score validates evidence against its modality's required keys, computes
// the raw score, clamps it to the declared range, normalizes to [0,1], and
// classifies the quality level. A validation failure is returned as-is and
// never masked by a zero-value result.
func Score(modalityName string, evidence map[string]any, thresholds Thresholds, question struct {
	Global       int
	BaseSlot     string
	PolicyAreaID string
	DimensionID  string
}, now time.Time) (ScoredResult, error) {
	m, ok := Modalities[modalityName]
	if !ok {
		return ScoredResult{}, diagnostic.DataContract("scoring", "unknown modality", map[string]string{"modality": modalityName})
	}
	if err := validateEvidence(m, evidence); err != nil {
		return ScoredResult{}, err
	}

	raw := scoreRaw(m, evidence)
	clamped := clamp(raw, m.MinScore, m.MaxScore)
	rounded := round(clamped, m.Rounding, m.RoundingPrecision)
	normalized := round(rounded/m.MaxScore, m.Rounding, m.RoundingPrecision)
	normalized = clamp(normalized, 0, 1)

	hash, err := EvidenceHash(evidence)
	if err != nil {
		return ScoredResult{}, err
	}

	return ScoredResult{
		QuestionGlobal: question.Global,
		BaseSlot:       question.BaseSlot,
		PolicyAreaID:   question.PolicyAreaID,
		DimensionID:    question.DimensionID,
		Modality:       modalityName,
		RawScore:       rounded,
		Normalized:     normalized,
		Quality:        thresholds.Classify(normalized),
		EvidenceHash:   hash,
		Metadata: map[string]any{
			"element_count": elementsCount(evidence),
			"clamped":       raw != clamped,
		},
		ScoredAt: now,
	}, nil
}
