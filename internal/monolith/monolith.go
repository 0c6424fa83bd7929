// Package monolith loads the question monolith JSON: the single versioned
// file encoding the 300-question evaluation instrument. This package and
// internal/signalregistry are the only components permitted to reference
// the monolith path; internal/signalregistry/access_test.go enforces this
// with a static scan.
package monolith

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/zeebo/blake3"
)

// Integrity carries the monolith's self-reported hash and verification
// flag.
type Integrity struct {
	Hash     string `json:"hash"`
	Verified bool   `json:"verified"`
}

// ContextPredicate restricts where a pattern applies.
type ContextPredicate map[string]string

// Pattern is one signal pattern specification as declared in the monolith.
type Pattern struct {
	ID                 string             `json:"id"`
	Text               string             `json:"text"`
	MatchMode          string             `json:"match_mode"` // "regex" or "substring"
	ConfidenceWeight   float64            `json:"confidence_weight"`
	Category           string             `json:"category"`
	SemanticExpansions []string           `json:"semantic_expansions,omitempty"`
	ContextPredicates  ContextPredicate   `json:"context_predicates,omitempty"`
	PolicyAreaID       string             `json:"policy_area_id"`
}

// ExpectedElement describes one schema element of a question's or chunk's
// expected-elements specification.
type ExpectedElement struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Required bool    `json:"required"`
	Minimum  float64 `json:"minimum,omitempty"`
	HasMin   bool    `json:"has_minimum,omitempty"`
}

// SignalRequirement names a required signal type a question declares.
type SignalRequirement struct {
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// Question is one of the 300 micro-questions.
type Question struct {
	QuestionGlobal    int                 `json:"question_global"`
	BaseSlot          string              `json:"base_slot"`
	PolicyAreaID      string              `json:"policy_area_id"`
	DimensionID       string              `json:"dimension_id"`
	ClusterID         string              `json:"cluster_id"`
	Patterns          []Pattern           `json:"patterns"`
	ExpectedElements  []ExpectedElement   `json:"expected_elements"`
	SignalRequirements []SignalRequirement `json:"signal_requirements"`
	Modality          string              `json:"modality"`
}

// Blocks groups the monolith's six documented sub-blocks. Only the fields
// the core pipeline actually consumes are modeled; the rest round-trip as
// raw JSON so a richer monolith does not fail to load.
type Blocks struct {
	Methods    json.RawMessage `json:"methods"`
	Dimensions json.RawMessage `json:"dimensions"`
	Indicators json.RawMessage `json:"indicators"`
	Outcomes   json.RawMessage `json:"outcomes"`
	Rules      json.RawMessage `json:"rules"`
	Constraints json.RawMessage `json:"constraints"`
}

// Monolith is the full parsed question instrument.
type Monolith struct {
	SchemaVersion     string     `json:"schema_version"`
	Schema            string     `json:"$schema,omitempty"`
	Integrity         Integrity  `json:"integrity"`
	CanonicalNotation string     `json:"canonical_notation,omitempty"`
	Blocks            Blocks     `json:"blocks"`
	Questions         []Question `json:"questions"`

	raw []byte
}

// Load reads and parses the monolith file at path. It does not validate
// question count or field completeness, and neither does the signal
// registry when it builds signal packs per policy area.
func Load(path string) (*Monolith, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("monolith: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw monolith bytes, keeping the original bytes for
// fingerprinting.
func Parse(data []byte) (*Monolith, error) {
	var m Monolith
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("monolith: decode: %w", err)
	}
	if m.SchemaVersion == "" {
		return nil, fmt.Errorf("monolith: missing schema_version")
	}
	m.raw = data
	return &m, nil
}

// QuestionsByPolicyArea returns the questions for one policy area, sorted
// by question_global.
func (m *Monolith) QuestionsByPolicyArea(policyAreaID string) []Question {
	var out []Question
	for _, q := range m.Questions {
		if q.PolicyAreaID == policyAreaID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionGlobal < out[j].QuestionGlobal })
	return out
}

// SortedQuestions returns all questions sorted by question_global, the
// deterministic iteration order required by irrigation Phase 2.
func (m *Monolith) SortedQuestions() []Question {
	out := make([]Question, len(m.Questions))
	copy(out, m.Questions)
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionGlobal < out[j].QuestionGlobal })
	return out
}

// Fingerprint returns the hex BLAKE3 digest of a slice of the monolith's
// raw bytes belonging to one policy area's patterns, used as the signal
// pack's source fingerprint. Slicing is logical (by policy area), not
// byte-range, since the monolith is a single JSON document.
func (m *Monolith) Fingerprint(policyAreaID string) string {
	qs := m.QuestionsByPolicyArea(policyAreaID)
	h := blake3.New()
	for _, q := range qs {
		for _, p := range q.Patterns {
			h.Write([]byte(p.ID))
			h.Write([]byte(p.Text))
		}
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("%x", sum)
}
