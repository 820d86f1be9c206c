package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimple(t *testing.T) {
	u, err := Parse("ravn://settings")
	require.NoError(t, err)
	assert.Equal(t, "settings", u.Path)
	assert.Empty(t, u.Query)
}

func TestParseWithQuery(t *testing.T) {
	u, err := Parse("ravn://compose?to=test@example.com")
	require.NoError(t, err)
	assert.Equal(t, "compose", u.Path)
	assert.Equal(t, "to=test@example.com", u.Query)
}

func TestParseRejectsOtherSchemes(t *testing.T) {
	_, err := Parse("https://example.com")
	assert.Error(t, err)
	_, err = Parse("mailto:a@b.c")
	assert.Error(t, err)
}

func TestRouterPath(t *testing.T) {
	u, err := Parse("ravn://settings/ai")
	require.NoError(t, err)
	assert.Equal(t, "/settings/ai", u.RouterPath())

	u, err = Parse("ravn://compose?to=x@y.z")
	require.NoError(t, err)
	assert.Equal(t, "/compose?to=x@y.z", u.RouterPath())

	u, err = Parse("ravn://")
	require.NoError(t, err)
	assert.Equal(t, "/", u.RouterPath())
}

func TestBuild(t *testing.T) {
	assert.Equal(t, "ravn://settings/ai", Build("/settings/ai", ""))
	assert.Equal(t, "ravn://compose?to=a@b.c", Build("compose", "to=a@b.c"))
}
