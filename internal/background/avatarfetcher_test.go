package background

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAvatarURLs(t *testing.T) {
	// md5("ada@example.com") drives the Gravatar path.
	assert.Equal(t,
		"https://www.gravatar.com/avatar/3e3417d7ef77d5932a6734b916515ed5?d=404&s=256",
		avatarURL(ProviderGravatar, "Ada@Example.com "))

	assert.Equal(t,
		"https://unavatar.io/ada@example.com?fallback=false",
		avatarURL(ProviderUnavatar, "ada@example.com"))

	assert.Equal(t,
		"https://www.google.com/s2/favicons?domain=example.com&sz=128",
		avatarURL(ProviderFavicon, "ada@example.com"))
}

func TestExtFromContentType(t *testing.T) {
	assert.Equal(t, "png", extFromContentType("image/png"))
	assert.Equal(t, "jpg", extFromContentType("image/jpeg"))
	assert.Equal(t, "gif", extFromContentType("image/gif"))
	assert.Equal(t, "webp", extFromContentType("image/webp"))
	assert.Equal(t, "ico", extFromContentType("image/x-icon"))
	assert.Equal(t, "jpg", extFromContentType(""))
}

func TestProviderCooldown(t *testing.T) {
	f := NewAvatarFetcher(nil, nil, nil, 0)
	assert.False(t, f.inCooldown(ProviderUnavatar))

	f.startCooldown(ProviderUnavatar)
	assert.True(t, f.inCooldown(ProviderUnavatar))
	assert.False(t, f.inCooldown(ProviderGravatar))

	// An elapsed cooldown clears itself.
	f.cooldownMu.Lock()
	f.cooldownUntil[ProviderUnavatar] = time.Now().Add(-time.Second)
	f.cooldownMu.Unlock()
	assert.False(t, f.inCooldown(ProviderUnavatar))
}

func TestRateLimitedErrorDetection(t *testing.T) {
	assert.True(t, isRateLimited(rateLimitedError{}))
	assert.False(t, isRateLimited(assert.AnError))
}
