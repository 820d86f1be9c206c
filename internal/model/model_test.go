package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSyncIntervals(t *testing.T) {
	assert.Equal(t, 60, FolderInbox.DefaultSyncInterval())
	assert.Equal(t, 300, FolderSent.DefaultSyncInterval())
	assert.Equal(t, 180, FolderDraft.DefaultSyncInterval())
	assert.Equal(t, 600, FolderTrash.DefaultSyncInterval())
	assert.Equal(t, 600, FolderSpam.DefaultSyncInterval())
	assert.Equal(t, 1800, FolderArchive.DefaultSyncInterval())
	assert.Equal(t, 300, FolderCustom.DefaultSyncInterval())
}

func TestUsageScore(t *testing.T) {
	now := time.Now()
	old := now.Add(-60 * 24 * time.Hour)
	recent := now.Add(-5 * 24 * time.Hour)

	stale := Contact{SendCount: 2, ReceiveCount: 3, LastUsedAt: &old}
	assert.Equal(t, 7, stale.UsageScore(now))

	boosted := Contact{SendCount: 2, ReceiveCount: 3, LastUsedAt: &recent}
	assert.Equal(t, 10, boosted.UsageScore(now))

	never := Contact{SendCount: 1, ReceiveCount: 0}
	assert.Equal(t, 2, never.UsageScore(now))
}
