// Package argctx implements the compile-time argument resolution registry
// described in the design notes on dynamic argument dispatch: method
// sequences are declaratively named but invoke methods whose argument sets
// differ, so arguments are resolved from a single ArgumentContext struct via
// a fixed alias table rather than reflection or name-based lookup.
package argctx

import "fmt"

// CausalGraphNode is a minimal vertex in a causal/DAG graph extracted
// earlier in a method sequence.
type CausalGraphNode struct {
	ID   string
	Kind string
}

// CausalGraph is the causal/theory-of-change graph produced by an earlier
// method in a sequence and consumed by a later one.
type CausalGraph struct {
	Nodes  []CausalGraphNode
	Source string
	Target string
}

// ArgumentContext holds everything a method in a sequence might need,
// populated from the chunk text, chunk sentences, chunk tables, prior
// method outputs, and the task's resolved signals.
type ArgumentContext struct {
	Data             map[string]any
	Document         any
	Text             string
	Sentences        []string
	Tables           []map[string]string
	Segments         []string
	Graph            *CausalGraph
	Statements       []string
	PriorOutputs     map[string]any
}

// New builds an empty ArgumentContext.
func New() *ArgumentContext {
	return &ArgumentContext{
		Data:         map[string]any{},
		PriorOutputs: map[string]any{},
	}
}

// RecordOutput stores a prior method's output under its method name so
// later methods in the sequence can read it back via PriorOutput.
func (c *ArgumentContext) RecordOutput(methodName string, value any) {
	c.PriorOutputs[methodName] = value
}

// aliasGroups mirrors the argument-alias table in the external interface
// contract exactly.
var aliasGroups = map[string][]string{
	"data":             {"data", "payload", "input_data"},
	"document":         {"doc", "document", "preprocessed_document"},
	"text":             {"text", "raw_text", "document_text"},
	"sentences":        {"sentences", "relevant_sentences"},
	"tables":           {"tables", "table_data"},
	"segments":         {"segments", "text_segments"},
	"graph":            {"grafo", "graph", "causal_graph", "dag"},
	"source":           {"origen", "source", "source_node"},
	"target":           {"destino", "target", "target_node"},
	"statements":       {"statements", "policy_statements"},
}

// canonicalGroup maps any accepted alias spelling to its canonical group
// name.
var canonicalGroup = func() map[string]string {
	m := make(map[string]string)
	for group, aliases := range aliasGroups {
		for _, a := range aliases {
			m[a] = group
		}
	}
	return m
}()

// Resolve resolves a method parameter name to a value in the context via
// the fixed alias table. An unrecognized alias is a resolution error, not a
// nil value, so a misconfigured method sequence fails loudly at dispatch
// time instead of silently passing nothing.
func (c *ArgumentContext) Resolve(paramName string) (any, error) {
	group, ok := canonicalGroup[paramName]
	if !ok {
		return nil, fmt.Errorf("argctx: no alias group registered for parameter %q", paramName)
	}
	switch group {
	case "data":
		return c.Data, nil
	case "document":
		return c.Document, nil
	case "text":
		return c.Text, nil
	case "sentences":
		return c.Sentences, nil
	case "tables":
		return c.Tables, nil
	case "segments":
		return c.Segments, nil
	case "graph":
		return c.Graph, nil
	case "source":
		if c.Graph == nil {
			return nil, fmt.Errorf("argctx: source requested but no graph resolved yet")
		}
		return c.Graph.Source, nil
	case "target":
		if c.Graph == nil {
			return nil, fmt.Errorf("argctx: target requested but no graph resolved yet")
		}
		return c.Graph.Target, nil
	case "statements":
		return c.Statements, nil
	}
	return nil, fmt.Errorf("argctx: unhandled alias group %q", group)
}

// PriorOutput resolves a named prior method's output, used by method
// sequences whose later steps depend on an earlier step's result rather
// than on a fixed alias.
func (c *ArgumentContext) PriorOutput(methodName string) (any, bool) {
	v, ok := c.PriorOutputs[methodName]
	return v, ok
}
