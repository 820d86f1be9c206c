// Package imapprovider implements provider.Provider against a generic IMAP4
// server, serving both AccountIMAP and AccountApple (same wire protocol,
// different default host/port chosen by the caller).
package imapprovider

import (
	"bytes"
	"io"
	"mime"
	"mime/quotedprintable"
	"regexp"
	"strings"
	"unicode/utf8"

	msgcharset "github.com/emersion/go-message/charset"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// decodeCharset converts content from declaredCharset to UTF-8, falling
// back to content-sniffing when the declared charset is absent, wrong, or
// produces gibberish — servers mislabel charsets often enough that trusting
// the header alone corrupts a visible slice of mail.
func decodeCharset(content []byte, declaredCharset string) string {
	if declaredCharset == "" || strings.EqualFold(declaredCharset, "utf-8") || strings.EqualFold(declaredCharset, "us-ascii") {
		if utf8.Valid(content) && !looksLikeGibberish(string(content)) {
			return string(content)
		}

		enc, _, _ := charset.DetermineEncoding(content, "text/html")
		if decoded, err := enc.NewDecoder().Bytes(content); err == nil && !looksLikeGibberish(string(decoded)) {
			return string(decoded)
		}

		for _, encName := range []string{"gb18030", "gbk", "gb2312", "big5", "euc-tw"} {
			enc, err := htmlindex.Get(encName)
			if err != nil {
				continue
			}
			if decoded, err := enc.NewDecoder().Bytes(content); err == nil && utf8.Valid(decoded) && !looksLikeGibberish(string(decoded)) {
				return string(decoded)
			}
		}
		return string(content)
	}

	enc, err := htmlindex.Get(declaredCharset)
	if err != nil {
		if alias, ok := charsetAliases[strings.ToLower(declaredCharset)]; ok {
			enc, err = htmlindex.Get(alias)
		}
		if err != nil {
			return string(content)
		}
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}

var charsetAliases = map[string]string{
	"gb2312": "gbk",
	"x-gbk":  "gbk",
	"x-big5": "big5",
}

// looksLikeGibberish flags content with a suspiciously high concentration
// of replacement characters or rare CJK Extension B codepoints, both
// telltale signs of a wrong charset guess.
func looksLikeGibberish(s string) bool {
	if len(s) == 0 {
		return false
	}
	var replacementCount, cjkExtBCount, total int
	for _, r := range s {
		total++
		if r == '�' {
			replacementCount++
		}
		if r >= 0x20000 && r <= 0x2A6DF {
			cjkExtBCount++
		}
	}
	if total > 10 && float64(replacementCount)/float64(total) > 0.1 {
		return true
	}
	if total > 20 && float64(cjkExtBCount)/float64(total) > 0.05 {
		return true
	}
	return false
}

var metaCharsetAttr = regexp.MustCompile(`(?i)<meta[^>]+charset=["']?([^"'\s>]+)`)
var metaCharsetEquiv = regexp.MustCompile(`(?i)<meta[^>]+content=["'][^"']*charset=([^"'\s;]+)`)

// extractCharsetFromHTML looks for a charset declared in an HTML meta tag,
// used when the MIME Content-Type header omits one.
func extractCharsetFromHTML(html []byte) string {
	searchBytes := html
	if len(html) > 1024 {
		searchBytes = html[:1024]
	}
	if m := metaCharsetAttr.FindSubmatch(searchBytes); len(m) > 1 {
		return string(m[1])
	}
	if m := metaCharsetEquiv.FindSubmatch(searchBytes); len(m) > 1 {
		return string(m[1])
	}
	return ""
}

// decodeQuotedPrintableIfNeeded is a safety net for quoted-printable
// content go-message's own decoding didn't catch.
func decodeQuotedPrintableIfNeeded(content []byte) []byte {
	s := string(content)
	if !strings.Contains(s, "=3D") && !strings.Contains(s, "=\n") && !strings.Contains(s, "=\r\n") {
		return content
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(content)))
	if err != nil {
		return content
	}
	return decoded
}

// decodeMIMEWord decodes RFC 2047 encoded words in headers (subjects,
// display names) with charset fallback beyond what mime.WordDecoder
// supports out of the box.
func decodeMIMEWord(s string) string {
	if s == "" {
		return s
	}
	dec := &mime.WordDecoder{
		CharsetReader: func(charsetName string, r io.Reader) (io.Reader, error) {
			if reader, err := msgcharset.Reader(charsetName, r); err == nil {
				return reader, nil
			}
			enc, err := htmlindex.Get(charsetName)
			if err != nil {
				return nil, err
			}
			return enc.NewDecoder().Reader(r), nil
		},
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
