// Package parser defines the format decomposition boundary (Phase 2).
// Concrete PDF/DOCX decoders are external collaborators per the purpose and
// scope contract; this package provides the Adapter interface, a registry,
// and a PlainTextAdapter usable for text documents and tests.
package parser

import (
	"fmt"
)

// BBox is a page-relative bounding box, present when the source adapter can
// supply layout information.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// TableCandidate is a region the adapter suspects is tabular, left for
// Phase 6 to classify.
type TableCandidate struct {
	PageID int
	BBox   BBox
	Rows   [][]string
}

// Page is one decomposed page: text in reading order, layout boxes, and
// table candidates. Every page must have a numeric id and a non-empty byte
// range in the source (Phase 2's postcondition).
type Page struct {
	ID              int
	Text            string
	LayoutBoxes     []BBox
	TableCandidates []TableCandidate
	SourceByteStart int64
	SourceByteEnd   int64
	LayoutConfidence float64
	TextDensity      float64
}

// ObjectTree is the raw decomposition result handed to Phase 3.
type ObjectTree struct {
	Pages []Page
	MIME  string
}

// Adapter decomposes raw bytes of a known MIME type into an ObjectTree.
type Adapter interface {
	// Supports reports whether this adapter can decode the given MIME type.
	Supports(mime string) bool
	// Decompose parses data into pages.
	Decompose(data []byte) (ObjectTree, error)
}

// Registry dispatches to the first adapter that supports a MIME type.
type Registry struct {
	adapters []Adapter
}

// NewRegistry builds a Registry from adapters in priority order.
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Decompose finds a supporting adapter and decomposes data.
func (r *Registry) Decompose(mime string, data []byte) (ObjectTree, error) {
	for _, a := range r.adapters {
		if a.Supports(mime) {
			tree, err := a.Decompose(data)
			if err != nil {
				return ObjectTree{}, err
			}
			if err := validate(tree); err != nil {
				return ObjectTree{}, err
			}
			return tree, nil
		}
	}
	return ObjectTree{}, fmt.Errorf("parser: no adapter registered for mime %q", mime)
}

func validate(tree ObjectTree) error {
	if len(tree.Pages) == 0 {
		return fmt.Errorf("parser: decomposition produced zero pages")
	}
	for _, p := range tree.Pages {
		if p.SourceByteEnd <= p.SourceByteStart {
			return fmt.Errorf("parser: page %d has empty byte range", p.ID)
		}
	}
	return nil
}

// PlainTextAdapter treats the entire input as a single page of UTF-8 text.
// It is the adapter used in tests and for already-extracted plain text
// input; real PDF/DOCX decoding is an external collaborator.
type PlainTextAdapter struct{}

func (PlainTextAdapter) Supports(mime string) bool {
	return mime == "text/plain; charset=utf-8" || mime == "text/plain"
}

func (PlainTextAdapter) Decompose(data []byte) (ObjectTree, error) {
	if len(data) == 0 {
		return ObjectTree{}, fmt.Errorf("parser: empty plain text input")
	}
	return ObjectTree{
		MIME: "text/plain",
		Pages: []Page{
			{
				ID:               0,
				Text:             string(data),
				SourceByteStart:  0,
				SourceByteEnd:    int64(len(data)),
				LayoutConfidence: 1.0,
				TextDensity:      1.0,
			},
		},
	}, nil
}
