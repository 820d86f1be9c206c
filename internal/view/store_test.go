package view

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewStore(db)
}

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	v := &model.View{Name: "Board", Type: model.ViewKanban, Config: `{"swimlanes":["todo","done"]}`}
	require.NoError(t, s.Create(v))
	require.NotEmpty(t, v.ID)

	got, err := s.Get(v.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ViewKanban, got.Type)
	assert.Equal(t, `{"swimlanes":["todo","done"]}`, got.Config)
	assert.False(t, got.IsDefault)
}

func TestSetDefaultIsExclusive(t *testing.T) {
	s := newStore(t)
	a := &model.View{Name: "A", Type: model.ViewList}
	b := &model.View{Name: "B", Type: model.ViewList}
	require.NoError(t, s.Create(a))
	require.NoError(t, s.Create(b))

	require.NoError(t, s.SetDefault(a.ID))
	require.NoError(t, s.SetDefault(b.ID))

	views, err := s.List()
	require.NoError(t, err)
	defaults := 0
	for _, v := range views {
		if v.IsDefault {
			defaults++
			assert.Equal(t, b.ID, v.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	def, err := s.GetDefault()
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, b.ID, def.ID)
}

func TestSetDefaultUnknownIDFails(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.SetDefault("nope"))
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	v := &model.View{Name: "Gone", Type: model.ViewList}
	require.NoError(t, s.Create(v))
	require.NoError(t, s.Delete(v.ID))

	got, err := s.Get(v.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
