package searchindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFreeText(t *testing.T) {
	pq := ParseQuery("quarterly report")
	assert.False(t, pq.HasAttachment)
	assert.Empty(t, pq.ReadFilter)
	assert.Contains(t, pq.MatchExpr, `subject:"quarterly"`)
	assert.Contains(t, pq.MatchExpr, `body_plain:"report"`)
	assert.Contains(t, pq.MatchExpr, " AND ")
}

func TestParseFieldPrefixes(t *testing.T) {
	pq := ParseQuery("subject:invoice from:billing@acme.com to:me@example.org")
	assert.Contains(t, pq.MatchExpr, `subject:"invoice"`)
	assert.Contains(t, pq.MatchExpr, `from_address:"billing@acme.com"`)
	assert.Contains(t, pq.MatchExpr, `to_addresses:"me@example.org"`)
}

func TestParseFlagFilters(t *testing.T) {
	pq := ParseQuery("has:attachment is:unread budget")
	assert.True(t, pq.HasAttachment)
	assert.Equal(t, "unread", pq.ReadFilter)
	assert.Contains(t, pq.MatchExpr, `"budget"`)

	assert.Equal(t, "read", ParseQuery("is:read").ReadFilter)
	assert.Equal(t, "flagged", ParseQuery("is:flagged").ReadFilter)
}

func TestParseFilterOnlyQueryHasNoMatchExpr(t *testing.T) {
	pq := ParseQuery("is:unread has:attachment")
	assert.Empty(t, pq.MatchExpr)
}

func TestParseEscapesEmbeddedQuotes(t *testing.T) {
	pq := ParseQuery(`subject:a"b`)
	assert.Contains(t, pq.MatchExpr, `subject:"a""b"`)
}
