// Package textnorm implements Phase 4 (Text extraction & normalization):
// reading-order text per page is run through Unicode NFC normalization and
// appended to a single content stream whose byte offsets are strictly
// monotone in (page_id, byte_offset) and always land on an NFC code-unit
// boundary, following the whitespace-normalization idiom of the teacher's
// ingest preprocessor but replacing its language-detection concern with the
// byte-offset bookkeeping this pipeline actually needs.
package textnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// PageText is one page's extracted reading-order text, as produced by the
// parser adapter in Phase 2.
type PageText struct {
	PageID int
	Text   string
}

// StreamEntry is one row of the content stream: (page_id, text, byte_start,
// byte_end), matching the columnar schema in the external interface
// contract.
type StreamEntry struct {
	PageID    int
	Text      string
	ByteStart int64
	ByteEnd   int64
}

// ContentStream is the Phase 4 postcondition: strictly monotone in
// (page_id, byte_offset).
type ContentStream struct {
	Entries []StreamEntry
}

var horizontalWhitespace = regexp.MustCompile(`[\t\x0b\x0c\r ]+`)
var blankRuns = regexp.MustCompile(`\n{3,}`)

// normalizeWhitespace collapses CRLF and horizontal whitespace without
// touching the NFC-significant content, mirroring the teacher's
// normalizeWhitespace but stopping short of trimming leading/trailing space
// (offset stability requires it stay a pure, length-predictable transform
// per call site — trimming happens once, at the page level, before offsets
// are assigned).
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = horizontalWhitespace.ReplaceAllString(s, " ")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return s
}

// Normalize builds a ContentStream from pages in reading order. Each page's
// text is whitespace-normalized then NFC-normalized; byte offsets are
// assigned cumulatively so the stream is strictly monotone across pages.
func Normalize(pages []PageText) (ContentStream, error) {
	var stream ContentStream
	var cursor int64
	lastPageID := -1

	for _, p := range pages {
		if p.PageID <= lastPageID {
			return ContentStream{}, fmt.Errorf("textnorm: page id %d out of order after %d", p.PageID, lastPageID)
		}
		lastPageID = p.PageID

		cleaned := strings.TrimSpace(normalizeWhitespace(p.Text))
		normalized := norm.NFC.String(cleaned)
		if !utf8.ValidString(normalized) {
			return ContentStream{}, fmt.Errorf("textnorm: page %d produced invalid UTF-8 after NFC", p.PageID)
		}
		if !norm.NFC.IsNormalString(normalized) {
			return ContentStream{}, fmt.Errorf("textnorm: page %d failed NFC round-trip", p.PageID)
		}

		start := cursor
		end := start + int64(len(normalized))
		stream.Entries = append(stream.Entries, StreamEntry{
			PageID:    p.PageID,
			Text:      normalized,
			ByteStart: start,
			ByteEnd:   end,
		})
		cursor = end
	}

	if err := validateMonotone(stream); err != nil {
		return ContentStream{}, err
	}
	return stream, nil
}

func validateMonotone(s ContentStream) error {
	var prevEnd int64 = -1
	prevPage := -1
	for _, e := range s.Entries {
		if e.PageID <= prevPage {
			return fmt.Errorf("textnorm: non-monotone page id %d", e.PageID)
		}
		if e.ByteStart < prevEnd {
			return fmt.Errorf("textnorm: overlapping byte range at page %d", e.PageID)
		}
		if e.ByteEnd < e.ByteStart {
			return fmt.Errorf("textnorm: inverted byte range at page %d", e.PageID)
		}
		if !utf8.ValidString(e.Text) {
			return fmt.Errorf("textnorm: invalid utf-8 at page %d", e.PageID)
		}
		prevEnd = e.ByteEnd
		prevPage = e.PageID
	}
	return nil
}

// ComputeHash mirrors the teacher's ComputeHash signature, kept for
// compatibility with code paths that still want a single stable digest of
// text+source+url (deduplication checks at the document level); content
// addressing for chunks themselves uses BLAKE3 via internal/contentstore.
func ComputeHash(text, source, url string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte("|"))
	h.Write([]byte(source))
	h.Write([]byte("|"))
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// FullText concatenates the stream's normalized page texts with a single
// newline separator, for callers that need the whole document as one
// string (policy graph detection, chunking).
func (s ContentStream) FullText() string {
	parts := make([]string, len(s.Entries))
	for i, e := range s.Entries {
		parts[i] = e.Text
	}
	return strings.Join(parts, "\n")
}
