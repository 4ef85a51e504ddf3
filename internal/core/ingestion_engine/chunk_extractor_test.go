package ingestion_engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenceText(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

func TestSplitIntoChunks_2400(t *testing.T) {
	text := sequenceText(2400)

	chunks := SplitIntoChunks(text, 1000, 200)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 1000)
	assert.Len(t, chunks[1], 1000)
	assert.Len(t, chunks[2], 800)

	assert.Equal(t, text[0:1000], chunks[0])
	assert.Equal(t, text[800:1800], chunks[1])
	assert.Equal(t, text[1600:2400], chunks[2])

	// 200-char overlap at each boundary
	assert.Equal(t, chunks[0][800:], chunks[1][:200])
	assert.Equal(t, chunks[1][800:], chunks[2][:200])
}

func TestSplitIntoChunks_Terminates(t *testing.T) {
	for _, n := range []int{1, 7, 199, 200, 201, 999, 1000, 1001, 5000} {
		for _, tc := range []struct{ size, overlap int }{
			{1000, 200}, {10, 9}, {10, 1}, {3, 0}, {5, 5}, {5, 50}, {0, 0}, {7, -3},
		} {
			chunks := SplitIntoChunks(sequenceText(n), tc.size, tc.overlap)
			require.NotEmpty(t, chunks, "n=%d size=%d overlap=%d", n, tc.size, tc.overlap)
			assert.LessOrEqual(t, len(chunks), n, "n=%d size=%d overlap=%d", n, tc.size, tc.overlap)
		}
	}
}

func TestSplitIntoChunks_CoversTail(t *testing.T) {
	text := sequenceText(1234)
	chunks := SplitIntoChunks(text, 100, 30)
	require.NotEmpty(t, chunks)
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
	assert.True(t, strings.HasPrefix(text, chunks[0]))
}

func TestSplitIntoChunks_CollapsesWhitespace(t *testing.T) {
	chunks := SplitIntoChunks("  Binary\n\n\tsearch   trees \r\n ", 1000, 200)
	assert.Equal(t, []string{"Binary search trees"}, chunks)
}

func TestSplitIntoChunks_Empty(t *testing.T) {
	assert.Empty(t, SplitIntoChunks("", 1000, 200))
	assert.Empty(t, SplitIntoChunks(" \n\t ", 1000, 200))
}

func TestSplitIntoChunks_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 25)
	chunks := SplitIntoChunks(text, 10, 2)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 10)
	}
}

func TestBuildChunks_IndexesAndTokens(t *testing.T) {
	chunks := buildChunks(sequenceText(2400), 1000, 200, approxTokens)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, approxTokens(c.Text), c.TokenCount)
	}
	assert.Equal(t, 250, chunks[0].TokenCount)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("abc"))
	assert.Equal(t, 1, approxTokens("abcd"))
	assert.Equal(t, 2, approxTokens("abcde"))
}
