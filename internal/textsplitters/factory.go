package textsplitters

import "fmt"

// Kind identifies a splitter strategy.
type Kind string

const (
	// KindSentences groups sentences along natural boundaries up to a
	// target size, the only strategy Phase 8 MICRO chunking uses.
	KindSentences Kind = "sentences"
)

// Unit indicates what a splitter measures when computing chunk sizes.
type Unit string

const (
	// UnitChars splits by Unicode characters (runes).
	UnitChars Unit = "chars"
	// UnitTokens splits by tokens, as defined by a Tokenizer implementation.
	UnitTokens Unit = "tokens"
)

// Config configures a splitter. The Kind selects the concrete strategy and
// the corresponding sub-config should be populated.
type Config struct {
	Kind     Kind
	Boundary BoundaryConfig
}

// NewFromConfig constructs a Splitter from a Config.
func NewFromConfig(c Config) (Splitter, error) {
	switch c.Kind {
	case KindSentences:
		return newSentenceSplitter(c.Boundary)
	default:
		return nil, fmt.Errorf("unknown splitter kind: %q", c.Kind)
	}
}
