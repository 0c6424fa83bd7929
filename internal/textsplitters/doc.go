// Package textsplitters provides the sentence-boundary grouping used to
// produce MICRO chunks within a single MESO unit's byte range (Phase 8).
// It groups sentences up to a target token size with a configurable
// overlap tail, so a MICRO chunk boundary never falls mid-sentence.
package textsplitters
