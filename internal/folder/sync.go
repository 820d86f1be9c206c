package folder

import (
	"context"
	"fmt"

	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
)

// Syncer reconciles a remote folder tree into the local folders table,
// matching by remote id and resolving parents by remote path, so
// Gmail/Graph's flat label sets and IMAP's nested mailboxes converge
// through the same pass.
type Syncer struct {
	store *Store
	bus   *events.Bus
}

// NewSyncer builds a FolderSync bound to a folder store and event bus.
func NewSyncer(store *Store, bus *events.Bus) *Syncer {
	return &Syncer{store: store, bus: bus}
}

// Sync fetches the remote folder tree via p and reconciles it into the
// folders table for account. Parent linking is by remote path:
// folders are processed in the order returned, so a provider that lists
// parents before children lets the lookup-by-path find the parent
// immediately. There is no second pass: a folder whose parent appears
// later in the same listing is stored without a parent until the next
// Sync, when the parent already exists locally.
func (s *Syncer) Sync(ctx context.Context, acc *model.Account, p provider.Provider) error {
	remote, err := p.FetchFolders(ctx)
	if err != nil {
		return fmt.Errorf("fetch folders: %w", err)
	}

	local, err := s.store.ListByAccount(acc.ID)
	if err != nil {
		return fmt.Errorf("list local folders: %w", err)
	}
	byRemoteID := make(map[string]*model.Folder, len(local))
	byPath := make(map[string]*model.Folder, len(local))
	for _, f := range local {
		byRemoteID[f.RemoteID] = f
		byPath[f.RemoteID] = f
	}

	seen := make(map[string]bool, len(remote))
	// remoteByPath resolves a SyncFolder.ParentRemoteID (or a path-derived
	// parent when the provider only gives a full path) to the folder's
	// own remote id, for providers (IMAP) that express hierarchy as a
	// delimited path rather than explicit parent ids.
	remoteByPath := make(map[string]string, len(remote))
	for _, rf := range remote {
		remoteByPath[rf.Path] = rf.RemoteID
	}

	createdByPath := make(map[string]*model.Folder)
	for _, rf := range remote {
		seen[rf.RemoteID] = true

		parentRemoteID := rf.ParentRemoteID
		if parentRemoteID == "" {
			parentRemoteID = parentPathOf(rf.Path)
			if id, ok := remoteByPath[parentRemoteID]; ok {
				parentRemoteID = id
			} else {
				parentRemoteID = ""
			}
		}

		var parentID *string
		if parentRemoteID != "" {
			if pf, ok := byRemoteID[parentRemoteID]; ok {
				parentID = &pf.ID
			} else if pf, ok := createdByPath[parentRemoteID]; ok {
				parentID = &pf.ID
			}
			// An unresolved parent (not yet
			// created because the listing is unordered) leaves ParentID
			// nil for now; a provider is expected to list ancestors
			// before descendants, which FetchFolders implementations
			// honor, so this is the rare case.
		}

		if existing, ok := byRemoteID[rf.RemoteID]; ok {
			existing.Name = baseName(rf.Name, rf.Path)
			existing.Type = rf.Type
			existing.ParentID = parentID
			if err := s.store.Update(existing); err != nil {
				return fmt.Errorf("update folder %s: %w", rf.RemoteID, err)
			}
			continue
		}

		f := &model.Folder{
			AccountID: acc.ID,
			Name:      baseName(rf.Name, rf.Path),
			Type:      rf.Type,
			RemoteID:  rf.RemoteID,
			ParentID:  parentID,
		}
		if err := s.store.Create(f); err != nil {
			return fmt.Errorf("create folder %s: %w", rf.RemoteID, err)
		}
		byRemoteID[f.RemoteID] = f
		createdByPath[rf.RemoteID] = f
		if s.bus != nil {
			s.bus.Emit(events.FolderUpdated, f)
		}
	}

	for _, f := range local {
		if !seen[f.RemoteID] {
			if err := s.store.Delete(f.ID); err != nil {
				return fmt.Errorf("delete stale folder %s: %w", f.ID, err)
			}
		}
	}

	return nil
}

// baseName extracts a folder's display name, preferring the provider's
// reported name and falling back to the last path segment for providers
// (IMAP) that only supply a delimited path.
func baseName(name, path string) string {
	if name != "" {
		return name
	}
	return lastSegment(path)
}

func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// parentPathOf returns the path prefix one level up, or "" for a
// top-level path. Empty string always means "no parent", never a
// distinct sentinel.
func parentPathOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
