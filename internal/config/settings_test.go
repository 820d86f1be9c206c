package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSettings(t *testing.T, defaults string) *Settings {
	t.Helper()
	dir := t.TempDir()
	defaultsPath := filepath.Join(dir, "defaults.json5")
	if defaults != "" {
		require.NoError(t, os.WriteFile(defaultsPath, []byte(defaults), 0o600))
	}
	s, err := New(defaultsPath, filepath.Join(dir, "settings.json5"))
	require.NoError(t, err)
	return s
}

func TestUserOverridesDefault(t *testing.T) {
	s := newSettings(t, `{"appearance": {"theme": "light", "density": "cozy"}}`)

	v, ok := s.Get("appearance.theme")
	require.True(t, ok)
	assert.Equal(t, "light", v)

	require.NoError(t, s.Set("appearance.theme", "dark"))
	v, ok = s.Get("appearance.theme")
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	// Untouched sibling still comes from defaults.
	v, ok = s.Get("appearance.density")
	require.True(t, ok)
	assert.Equal(t, "cozy", v)
}

func TestSetFlattensObjectOneLevel(t *testing.T) {
	s := newSettings(t, "")
	require.NoError(t, s.Set("sync", map[string]any{"interval": 60, "enabled": true}))

	v, ok := s.Get("sync.interval")
	require.True(t, ok)
	assert.Equal(t, 60, v)
	v, ok = s.Get("sync.enabled")
	require.True(t, ok)
	assert.Equal(t, true, v)
}

func TestArraysStoredAtomically(t *testing.T) {
	s := newSettings(t, "")
	require.NoError(t, s.Set("notifications.badge_folders", []any{"f1", "f2"}))

	v, ok := s.Get("notifications.badge_folders")
	require.True(t, ok)
	assert.Equal(t, []any{"f1", "f2"}, v)
}

func TestRemoveRevertsToDefault(t *testing.T) {
	s := newSettings(t, `{"a": {"b": 1}}`)
	require.NoError(t, s.Set("a.b", 2))
	require.NoError(t, s.Remove("a.b"))

	v, ok := s.Get("a.b")
	require.True(t, ok)
	assert.Equal(t, float64(1), v)
}

func TestGetUserKeysOnlyListsOverrides(t *testing.T) {
	s := newSettings(t, `{"a": 1, "b": 2}`)
	require.NoError(t, s.Set("b", 3))
	require.NoError(t, s.Set("c.d", 4))

	keys := s.GetUserKeys()
	assert.ElementsMatch(t, []string{"b", "c.d"}, keys)
}

func TestGetAllMergesUserWins(t *testing.T) {
	s := newSettings(t, `{"a": 1, "nested": {"x": "d"}}`)
	require.NoError(t, s.Set("nested.x", "u"))

	all := s.GetAll()
	assert.Equal(t, float64(1), all["a"])
	nested := all["nested"].(map[string]any)
	assert.Equal(t, "u", nested["x"])
}

func TestPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	userPath := filepath.Join(dir, "settings.json5")
	s, err := New(filepath.Join(dir, "defaults.json5"), userPath)
	require.NoError(t, err)
	require.NoError(t, s.Set("a.b", "persisted"))

	s2, err := New(filepath.Join(dir, "defaults.json5"), userPath)
	require.NoError(t, err)
	v, ok := s2.Get("a.b")
	require.True(t, ok)
	assert.Equal(t, "persisted", v)
}
