// Package diagnostic defines the typed failure record shared across every
// phase and component: a data-contract failure or a system failure, always
// carrying the identifiers needed to locate it without re-parsing a free-form
// message.
package diagnostic

import (
	"errors"
	"fmt"
)

// Kind distinguishes a data-contract failure (always fatal, never retried)
// from a system failure (retried where semantically safe, otherwise
// converted to ABORT).
type Kind string

const (
	KindDataContract Kind = "data_contract"
	KindSystem       Kind = "system"
)

// Diagnostic is a structured, JSON-loggable failure record.
type Diagnostic struct {
	Kind          Kind              `json:"kind"`
	Phase         string            `json:"phase"`
	Identifiers   map[string]string `json:"identifiers,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Message       string            `json:"message"`
	Guidance      string            `json:"guidance,omitempty"`
}

func (d *Diagnostic) Error() string {
	if d.Guidance != "" {
		return fmt.Sprintf("%s in %s: %s — %s", d.Kind, d.Phase, d.Message, d.Guidance)
	}
	return fmt.Sprintf("%s in %s: %s", d.Kind, d.Phase, d.Message)
}

// New builds a Diagnostic. ids is copied defensively so callers may reuse
// the map literal.
func New(kind Kind, phase, message string, ids map[string]string) *Diagnostic {
	cp := make(map[string]string, len(ids))
	for k, v := range ids {
		cp[k] = v
	}
	return &Diagnostic{Kind: kind, Phase: phase, Message: message, Identifiers: cp}
}

// DataContract builds a KindDataContract diagnostic.
func DataContract(phase, message string, ids map[string]string) *Diagnostic {
	return New(KindDataContract, phase, message, ids)
}

// System builds a KindSystem diagnostic.
func System(phase, message string, ids map[string]string) *Diagnostic {
	return New(KindSystem, phase, message, ids)
}

// WithCorrelation sets the correlation id and returns the receiver for
// chaining.
func (d *Diagnostic) WithCorrelation(id string) *Diagnostic {
	d.CorrelationID = id
	return d
}

// WithGuidance attaches prescriptive guidance text and returns the receiver.
func (d *Diagnostic) WithGuidance(g string) *Diagnostic {
	d.Guidance = g
	return d
}

// IsDataContract reports whether err is, or wraps, a data-contract
// Diagnostic.
func IsDataContract(err error) bool {
	var d *Diagnostic
	return errors.As(err, &d) && d.Kind == KindDataContract
}

// IsSystem reports whether err is, or wraps, a system Diagnostic.
func IsSystem(err error) bool {
	var d *Diagnostic
	return errors.As(err, &d) && d.Kind == KindSystem
}
