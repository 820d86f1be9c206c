// Package cidrewrite rewrites inline cid: references in HTML bodies to
// attachment:// URLs pointing at cached blob paths.
//
// The rewriter is pure and read-time only: it never mutates a stored
// body, so moving or renaming a cached blob never requires touching
// already-stored HTML.
package cidrewrite

import (
	"regexp"
	"strings"
)

// cidRefPattern matches cid: references in src=, href=, or CSS url()
// contexts, case-insensitively, quoted or unquoted.
var cidRefPattern = regexp.MustCompile(`(?i)(?:src|href|url)\s*=?\s*\(?\s*["']?cid:([^"'\s>)]+)["']?\)?`)

// ExtractReferences returns the normalized (surrounding <> stripped)
// Content-IDs referenced by body_html.
func ExtractReferences(bodyHTML string) []string {
	matches := cidRefPattern.FindAllStringSubmatch(bodyHTML, -1)
	seen := make(map[string]bool, len(matches))
	var refs []string
	for _, m := range matches {
		id := normalize(m[1])
		if !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return refs
}

// IsReferenced reports whether contentID (with or without surrounding
// <>) is referenced anywhere in bodyHTML.
func IsReferenced(bodyHTML, contentID string) bool {
	target := normalize(contentID)
	for _, ref := range ExtractReferences(bodyHTML) {
		if ref == target {
			return true
		}
	}
	return false
}

// Rewrite replaces every cid:<id> reference in bodyHTML whose normalized
// id is a key of cacheByContentID with attachment://<cache_path>,
// leaving unmatched cid: references untouched.
func Rewrite(bodyHTML string, cacheByContentID map[string]string) string {
	if len(cacheByContentID) == 0 {
		return bodyHTML
	}

	return cidRefPattern.ReplaceAllStringFunc(bodyHTML, func(match string) string {
		sub := cidRefPattern.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		id := normalize(sub[1])
		cachePath, ok := cacheByContentID[id]
		if !ok {
			return match
		}
		return rewriteOne(match, "attachment://"+cachePath)
	})
}

// rewriteOne replaces the cid: value inside a single matched attribute
// or url() expression, preserving the attribute name and quoting style.
func rewriteOne(match, replacement string) string {
	lower := strings.ToLower(match)
	idx := strings.Index(lower, "cid:")
	if idx == -1 {
		return match
	}
	prefix := match[:idx]
	suffix := match[idx:]

	// Trim the cid:<id> token itself, keeping any trailing quote/paren.
	end := len(suffix)
	for i, r := range suffix {
		if r == '"' || r == '\'' || r == ')' || r == '>' {
			end = i
			break
		}
	}
	return prefix + replacement + suffix[end:]
}

func normalize(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}
