package oauth2state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAndRemoveReturnsOnce(t *testing.T) {
	m := NewManager()
	m.Store(State{CSRFToken: "tok", PKCEVerifier: "ver", AccountID: "a1", CreatedAt: time.Now()})

	st, err := m.GetAndRemove("tok")
	require.NoError(t, err)
	assert.Equal(t, "ver", st.PKCEVerifier)
	assert.Equal(t, "a1", st.AccountID)

	_, err = m.GetAndRemove("tok")
	assert.Error(t, err)
}

func TestGetAndRemoveUnknownToken(t *testing.T) {
	m := NewManager()
	_, err := m.GetAndRemove("missing")
	assert.Error(t, err)
}

func TestExpiredStateRejected(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.now = func() time.Time { return now.Add(11 * time.Minute) }
	m.Store(State{CSRFToken: "old", CreatedAt: now})

	_, err := m.GetAndRemove("old")
	assert.Error(t, err)
	// The sweep dropped it entirely.
	_, ok := m.Get("old")
	assert.False(t, ok)
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	m := NewManager()
	now := time.Now()
	m.Store(State{CSRFToken: "stale", CreatedAt: now.Add(-11 * time.Minute)})
	m.Store(State{CSRFToken: "fresh", CreatedAt: now})

	st, err := m.GetAndRemove("fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh", st.CSRFToken)

	_, ok := m.Get("stale")
	assert.False(t, ok)
}
