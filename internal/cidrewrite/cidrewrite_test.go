package cidrewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteImgSrc(t *testing.T) {
	body := `<img src="cid:abc">`
	got := Rewrite(body, map[string]string{"abc": "acct/msg/pic.png"})
	assert.Equal(t, `<img src="attachment://acct/msg/pic.png">`, got)
}

func TestRewriteUnquotedAndCSSURL(t *testing.T) {
	got := Rewrite(`<img src=cid:logo1>`, map[string]string{"logo1": "a/b/logo.png"})
	assert.Contains(t, got, "attachment://a/b/logo.png")

	got = Rewrite(`<div style="background:url(cid:bg9)">`, map[string]string{"bg9": "a/b/bg.jpg"})
	assert.Contains(t, got, "url(attachment://a/b/bg.jpg)")
}

func TestRewriteLeavesUnknownIDs(t *testing.T) {
	body := `<img src="cid:unknown">`
	assert.Equal(t, body, Rewrite(body, map[string]string{"other": "x/y/z.png"}))
	assert.Equal(t, body, Rewrite(body, nil))
}

func TestRewriteIdempotent(t *testing.T) {
	m := map[string]string{"abc": "acct/msg/pic.png"}
	once := Rewrite(`<img src="cid:abc"> <a href="cid:abc">x</a>`, m)
	assert.Equal(t, once, Rewrite(once, m))
}

func TestIsReferencedStripsAngles(t *testing.T) {
	body := `<img src="cid:abc">`
	assert.True(t, IsReferenced(body, "abc"))
	assert.True(t, IsReferenced(body, "<abc>"))
	assert.False(t, IsReferenced(body, "def"))
}

func TestExtractReferencesDedupes(t *testing.T) {
	body := `<img src="cid:a"><img src="cid:a"><a href="cid:b">x</a>`
	assert.Equal(t, []string{"a", "b"}, ExtractReferences(body))
}
