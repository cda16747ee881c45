package ingestion_engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docchat/internal/core"
)

func TestChunkText_Windows(t *testing.T) {
	chunks, err := ChunkText("abcdefghij", 4, 1)
	require.NoError(t, err)
	// starts at 0, 3, 6, 9
	assert.Equal(t, []string{"abcd", "defg", "ghij", "j"}, chunks)
}

func TestChunkText_NoOverlap(t *testing.T) {
	chunks, err := ChunkText("abcdefgh", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "efgh"}, chunks)
}

func TestChunkText_TrimsAndDropsBlankWindows(t *testing.T) {
	chunks, err := ChunkText("ab          cd", 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "cd"}, chunks)
}

func TestChunkText_EmptyInput(t *testing.T) {
	chunks, err := ChunkText("", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = ChunkText("   \n\t  ", 3, 1)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkText_RejectsBadWindow(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 11},
		{"negative overlap", 10, -1},
		{"zero size", 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ChunkText("some text", tc.size, tc.overlap)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		})
	}
}

func TestChunkText_LengthBound(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	for _, cfg := range [][2]int{{1, 0}, {7, 3}, {50, 49}, {512, 50}, {4096, 0}} {
		chunks, err := ChunkText(text, cfg[0], cfg[1])
		require.NoError(t, err)
		for _, c := range chunks {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), cfg[0])
		}
	}
}

func TestChunkText_CoversAllContent(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs."
	size, overlap := 16, 4
	chunks, err := ChunkText(text, size, overlap)
	require.NoError(t, err)

	// Every non-space character of the input must appear in some window, in order.
	var rebuilt strings.Builder
	for i, c := range chunks {
		if i == 0 {
			rebuilt.WriteString(c)
			continue
		}
		// drop the overlap duplicated from the previous window
		prev := chunks[i-1]
		k := min(overlap, len(prev), len(c))
		for k > 0 && !strings.HasSuffix(prev, c[:k]) {
			k--
		}
		rebuilt.WriteString(c[k:])
	}
	strip := func(s string) string { return strings.Join(strings.Fields(s), "") }
	assert.Equal(t, strip(text), strip(rebuilt.String()))
}

func TestChunkText_Multibyte(t *testing.T) {
	chunks, err := ChunkText("日本語のテキスト", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"日本語", "語のテ", "テキス", "スト"}, chunks)
}
