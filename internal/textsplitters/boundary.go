package textsplitters

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// BoundaryConfig controls the sentence splitter.
type BoundaryConfig struct {
	Unit      Unit      // chars or tokens for target size
	Size      int       // target size; if <=0 default to 500
	Overlap   int       // optional overlap in same unit (best-effort)
	Tokenizer Tokenizer // used when Unit==tokens
}

var sentRe = regexp.MustCompile(`(?s)([^\.!?]+[\.!?]+|[^\.!?]+$)`) // naive sentence finder

func sentencesOf(text string) []string {
	parts := sentRe.FindAllString(strings.TrimSpace(text), -1)
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func measure(text string, unit Unit, tok Tokenizer) int {
	if unit == UnitTokens {
		if tok == nil {
			tok = WhitespaceTokenizer{}
		}
		return len(tok.Tokenize(text))
	}
	return utf8.RuneCountInString(text)
}

func clipOverlapTail(chunk string, want int, unit Unit, tok Tokenizer) string {
	if want <= 0 || chunk == "" {
		return ""
	}
	if unit == UnitTokens {
		if tok == nil {
			tok = WhitespaceTokenizer{}
		}
		toks := tok.Tokenize(chunk)
		if want >= len(toks) {
			return chunk
		}
		return tok.Detokenize(toks[len(toks)-want:])
	}
	// chars: walk runes from the end to find the byte index want runes back
	n := utf8.RuneCountInString(chunk)
	if want >= n {
		return chunk
	}
	idxs := make([]int, 0, n+1)
	idxs = append(idxs, 0)
	for i := 0; i < len(chunk); {
		_, w := utf8.DecodeRuneInString(chunk[i:])
		i += w
		idxs = append(idxs, i)
	}
	start := idxs[n-want]
	return chunk[start:]
}

// groupByTarget packs sentence units into chunks no larger than cfg.Size,
// carrying an overlap tail from the end of one chunk into the next so
// adjacent MICRO chunks share context at their boundary.
func groupByTarget(units []string, cfg BoundaryConfig) []string {
	if len(units) == 0 {
		return nil
	}
	size := cfg.Size
	if size <= 0 {
		size = 500
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	var tok Tokenizer
	if cfg.Unit == UnitTokens {
		tok = cfg.Tokenizer
		if tok == nil {
			tok = WhitespaceTokenizer{}
		}
	}

	var chunks []string
	var cur strings.Builder
	for i, u := range units {
		if u == "" {
			continue
		}
		candidate := u
		if cur.Len() > 0 {
			candidate = cur.String() + "\n" + u
		}
		if measure(candidate, cfg.Unit, tok) <= size || cur.Len() == 0 {
			if cur.Len() > 0 {
				cur.WriteString("\n")
			}
			cur.WriteString(u)
			if i == len(units)-1 {
				if s := cur.String(); s != "" {
					chunks = append(chunks, s)
				}
			}
			continue
		}
		// current chunk is full; close it and seed the next with an overlap tail
		if s := cur.String(); s != "" {
			chunks = append(chunks, s)
			tail := clipOverlapTail(s, cfg.Overlap, cfg.Unit, tok)
			cur.Reset()
			if tail != "" {
				cur.WriteString(tail)
				cur.WriteString("\n")
			}
		}
		cur.WriteString(u)
		if i == len(units)-1 {
			if s := cur.String(); s != "" {
				chunks = append(chunks, s)
			}
		}
	}
	return chunks
}

type boundarySplitter struct {
	cfg BoundaryConfig
}

func newSentenceSplitter(cfg BoundaryConfig) (Splitter, error) {
	return &boundarySplitter{cfg: cfg}, nil
}

func (s *boundarySplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return groupByTarget(sentencesOf(text), s.cfg)
}
