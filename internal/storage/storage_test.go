package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRetrieveRoundTrip(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	data := []byte("attachment bytes")
	require.NoError(t, s.Store("acct/email/doc.pdf", data))
	assert.True(t, s.Exists("acct/email/doc.pdf"))

	got, err := s.Retrieve("acct/email/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDeleteAndDeleteDirectory(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Store("acct/email/a.txt", []byte("a")))
	require.NoError(t, s.Store("acct/email/b.txt", []byte("b")))

	require.NoError(t, s.Delete("acct/email/a.txt"))
	assert.False(t, s.Exists("acct/email/a.txt"))
	// Deleting an absent file is a no-op.
	require.NoError(t, s.Delete("acct/email/a.txt"))

	require.NoError(t, s.DeleteDirectory("acct"))
	assert.False(t, s.Exists("acct/email/b.txt"))
}

func TestRejectsEscapingPaths(t *testing.T) {
	s, err := NewLocalFileStorage(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, s.Store("/etc/passwd", []byte("x")))
	assert.Error(t, s.Store("../outside.txt", []byte("x")))
	assert.Error(t, s.Store("a/../../outside.txt", []byte("x")))
	assert.False(t, s.Exists("../outside.txt"))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, `a_b_c_d_e_f_g_h_i_j`, SanitizeFilename(`a/b\c:d*e?f"g<h>i|j`))
	assert.Equal(t, "plain.txt", SanitizeFilename("plain.txt"))

	// Sanitizing twice is the same as once.
	once := SanitizeFilename(`in:va|lid.pdf`)
	assert.Equal(t, once, SanitizeFilename(once))
}

func TestCachePath(t *testing.T) {
	assert.Equal(t, "acct/mail/my_file.pdf", CachePath("acct", "mail", `my:file.pdf`))
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ComputeHash([]byte("hello")))
	// Equal content, equal hash; different content, different hash.
	assert.Equal(t, ComputeHash([]byte("x")), ComputeHash([]byte("x")))
	assert.NotEqual(t, ComputeHash([]byte("x")), ComputeHash([]byte("y")))
}
