package searchindex

import (
	"fmt"
	"strings"
)

// ParsedQuery is a search query string broken into
// its field-prefixed facets and a compiled FTS5 MATCH expression for the
// remaining free text.
type ParsedQuery struct {
	MatchExpr     string
	HasAttachment bool
	ReadFilter    string // "read" | "unread" | "flagged" | ""
}

// ParseQuery recognizes the field prefixes subject:, from:, to:,
// has:attachment, is:read|unread|flagged, and treats remaining tokens as
// free text across subject ∨ snippet ∨ body ∨ from_address ∨
// to_addresses.
func ParseQuery(query string) ParsedQuery {
	var pq ParsedQuery
	var subject, from, to, free []string

	for _, tok := range strings.Fields(query) {
		lower := strings.ToLower(tok)
		switch {
		case strings.HasPrefix(lower, "subject:"):
			subject = append(subject, tok[len("subject:"):])
		case strings.HasPrefix(lower, "from:"):
			from = append(from, tok[len("from:"):])
		case strings.HasPrefix(lower, "to:"):
			to = append(to, tok[len("to:"):])
		case lower == "has:attachment":
			pq.HasAttachment = true
		case lower == "is:read":
			pq.ReadFilter = "read"
		case lower == "is:unread":
			pq.ReadFilter = "unread"
		case lower == "is:flagged":
			pq.ReadFilter = "flagged"
		default:
			free = append(free, tok)
		}
	}

	var clauses []string
	for _, v := range subject {
		clauses = append(clauses, fmt.Sprintf("subject:%s", ftsToken(v)))
	}
	for _, v := range from {
		clauses = append(clauses, fmt.Sprintf("from_address:%s", ftsToken(v)))
	}
	for _, v := range to {
		clauses = append(clauses, fmt.Sprintf("to_addresses:%s", ftsToken(v)))
	}
	for _, v := range free {
		t := ftsToken(v)
		clauses = append(clauses, fmt.Sprintf("(subject:%s OR snippet:%s OR body_plain:%s OR from_address:%s OR to_addresses:%s)", t, t, t, t, t))
	}
	pq.MatchExpr = strings.Join(clauses, " AND ")
	return pq
}

// ftsToken quotes a token for FTS5 MATCH, escaping embedded quotes so
// arbitrary user input can't break out of the string literal.
func ftsToken(v string) string {
	v = strings.ReplaceAll(v, `"`, `""`)
	return `"` + v + `"`
}
