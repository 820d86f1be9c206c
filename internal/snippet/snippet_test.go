package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNilOnEmptyAndWhitespace(t *testing.T) {
	assert.Nil(t, Extract(""))
	assert.Nil(t, Extract("   \t  "))
	assert.Nil(t, Extract("\n\n\r\n  \n"))
}

func TestExtractCollapsesWhitespace(t *testing.T) {
	got := Extract("Hello   world\n\n\tsecond  line\n")
	require.NotNil(t, got)
	assert.Equal(t, "Hello world second line", *got)
}

func TestExtractShortInputUnchanged(t *testing.T) {
	got := Extract("Just a short body.")
	require.NotNil(t, got)
	assert.Equal(t, "Just a short body.", *got)
}

func TestExtractTruncatesAtWordBoundary(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 60))
	got := Extract(long)
	require.NotNil(t, got)

	assert.True(t, strings.HasSuffix(*got, "…"))
	runes := []rune(*got)
	assert.LessOrEqual(t, len(runes), 200)
	// The cut lands on a word boundary, never mid-word.
	trimmed := strings.TrimSuffix(*got, "…")
	assert.True(t, strings.HasSuffix(trimmed, "word"))
}

func TestExtractIdempotentOnShortInputs(t *testing.T) {
	inputs := []string{
		"Hello world",
		"one two three four",
		strings.TrimSpace(strings.Repeat("ab ", 60)),
	}
	for _, in := range inputs {
		first := Extract(in)
		require.NotNil(t, first)
		second := Extract(*first)
		require.NotNil(t, second)
		assert.Equal(t, *first, *second)
	}
}
