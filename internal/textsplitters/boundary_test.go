package textsplitters_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"policypipeline/internal/textsplitters"
)

func sentenceSplitter(t *testing.T, size, overlap int) textsplitters.Splitter {
	t.Helper()
	s, err := textsplitters.NewFromConfig(textsplitters.Config{
		Kind: textsplitters.KindSentences,
		Boundary: textsplitters.BoundaryConfig{
			Unit:    textsplitters.UnitTokens,
			Size:    size,
			Overlap: overlap,
		},
	})
	require.NoError(t, err)
	return s
}

func TestSentenceSplitterNeverCrossesASentenceBoundary(t *testing.T) {
	text := "El presupuesto aumenta. La meta es reducir pobreza. El plan cubre cinco anios."
	splitter := sentenceSplitter(t, 6, 0)

	segments := splitter.Split(text)
	require.NotEmpty(t, segments)
	for _, seg := range segments {
		trimmed := strings.TrimSpace(seg)
		require.True(t, strings.HasSuffix(trimmed, ".") || trimmed == "", "segment %q does not end on a sentence boundary", seg)
	}
}

func TestSentenceSplitterGroupsUpToTargetSize(t *testing.T) {
	text := "Uno dos tres. Cuatro cinco seis. Siete ocho nueve."
	splitter := sentenceSplitter(t, 3, 0)

	segments := splitter.Split(text)
	require.Len(t, segments, 3)
}

func TestSentenceSplitterCarriesOverlapTailIntoNextSegment(t *testing.T) {
	text := "Uno dos tres. Cuatro cinco seis. Siete ocho nueve."
	splitter := sentenceSplitter(t, 3, 2)

	segments := splitter.Split(text)
	require.GreaterOrEqual(t, len(segments), 2)
	require.True(t, strings.HasPrefix(segments[1], "dos tres."), "expected overlap tail from prior segment, got %q", segments[1])
}

func TestSentenceSplitterEmptyTextYieldsNoSegments(t *testing.T) {
	splitter := sentenceSplitter(t, 100, 0)
	require.Empty(t, splitter.Split("   "))
}
