// Package policygraph implements Phase 3 (Policy-aware structural
// normalization): detecting the hierarchical policy structure — Ejes,
// Programas, Proyectos, Metas, Indicadores — and labelling byte ranges of
// the content stream with their structural role.
package policygraph

import (
	"fmt"
	"regexp"
	"sort"
)

// UnitKind enumerates the five policy-structure levels, from root to leaf.
type UnitKind string

const (
	KindEje        UnitKind = "EJE"
	KindPrograma   UnitKind = "PROGRAMA"
	KindProyecto   UnitKind = "PROYECTO"
	KindMeta       UnitKind = "META"
	KindIndicador  UnitKind = "INDICADOR"
)

var kindRank = map[UnitKind]int{
	KindEje:       0,
	KindPrograma:  1,
	KindProyecto:  2,
	KindMeta:      3,
	KindIndicador: 4,
}

// Unit is one detected policy-structure node. Every unit has a non-empty
// byte range and a parent, except Ejes at the root (Phase 3's
// postcondition).
type Unit struct {
	ID         string
	Kind       UnitKind
	Label      string
	ByteStart  int64
	ByteEnd    int64
	ParentID   string // empty for root Ejes
}

// Graph is the preliminary policy graph: a flat, sorted list of Units plus
// a parent→children index.
type Graph struct {
	Units    []Unit
	children map[string][]string
}

func (g *Graph) ChildrenOf(id string) []string { return g.children[id] }

var headingPatterns = []struct {
	kind UnitKind
	re   *regexp.Regexp
}{
	{KindEje, regexp.MustCompile(`(?mi)^\s*eje\s+(?:estrat[eé]gico\s+)?(\d+|[ivxlcdm]+)\b[:.\-]?\s*(.*)$`)},
	{KindPrograma, regexp.MustCompile(`(?mi)^\s*programa\s+(\d+(?:\.\d+)*)\b[:.\-]?\s*(.*)$`)},
	{KindProyecto, regexp.MustCompile(`(?mi)^\s*proyecto\s+(\d+(?:\.\d+)*)\b[:.\-]?\s*(.*)$`)},
	{KindMeta, regexp.MustCompile(`(?mi)^\s*meta\s+(\d+(?:\.\d+)*)\b[:.\-]?\s*(.*)$`)},
	{KindIndicador, regexp.MustCompile(`(?mi)^\s*indicador\s+(\d+(?:\.\d+)*)\b[:.\-]?\s*(.*)$`)},
}

type match struct {
	kind   UnitKind
	number string
	label  string
	offset int
}

// Detect scans normalized full text for policy-structure headings and
// builds the preliminary graph. offsetBase is added to every detected byte
// offset so callers can align the graph with a content stream whose first
// byte is not position 0 (not used when text is the whole document).
func Detect(text string, offsetBase int64) (*Graph, error) {
	var matches []match
	for _, hp := range headingPatterns {
		for _, loc := range hp.re.FindAllStringSubmatchIndex(text, -1) {
			number := text[loc[2]:loc[3]]
			label := ""
			if loc[4] >= 0 {
				label = text[loc[4]:loc[5]]
			}
			matches = append(matches, match{kind: hp.kind, number: number, label: label, offset: loc[0]})
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("policygraph: no structural headings detected")
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].offset < matches[j].offset })

	g := &Graph{children: make(map[string][]string)}
	stack := []Unit{} // open ancestors by kind rank

	for i, m := range matches {
		end := int64(len(text))
		if i+1 < len(matches) {
			end = int64(matches[i+1].offset)
		}
		id := fmt.Sprintf("%s-%s", m.kind, m.number)

		for len(stack) > 0 && kindRank[stack[len(stack)-1].Kind] >= kindRank[m.kind] {
			stack = stack[:len(stack)-1]
		}
		parentID := ""
		if len(stack) > 0 {
			parentID = stack[len(stack)-1].ID
		}

		u := Unit{
			ID:        id,
			Kind:      m.kind,
			Label:     m.label,
			ByteStart: offsetBase + int64(m.offset),
			ByteEnd:   offsetBase + end,
			ParentID:  parentID,
		}
		if u.Kind != KindEje && u.ParentID == "" {
			return nil, fmt.Errorf("policygraph: unit %s has no parent", u.ID)
		}
		if u.ByteEnd <= u.ByteStart {
			return nil, fmt.Errorf("policygraph: unit %s has empty byte range", u.ID)
		}

		g.Units = append(g.Units, u)
		if parentID != "" {
			g.children[parentID] = append(g.children[parentID], id)
		}
		stack = append(stack, u)
	}

	return g, nil
}

// BoundaryFor returns the nearest enclosing Eje or Programa unit containing
// byteOffset.
func (g *Graph) BoundaryFor(byteOffset int64) (Unit, bool) {
	var best Unit
	found := false
	for _, u := range g.Units {
		if u.Kind != KindEje && u.Kind != KindPrograma {
			continue
		}
		if byteOffset >= u.ByteStart && byteOffset < u.ByteEnd {
			if !found || (u.ByteEnd-u.ByteStart) < (best.ByteEnd-best.ByteStart) {
				best = u
				found = true
			}
		}
	}
	return best, found
}
