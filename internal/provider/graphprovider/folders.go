package graphprovider

import (
	"context"
	"fmt"

	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
)

// wellKnownFolders maps Graph's well-known mailFolder names onto
// model.FolderType; everything else is a user-created folder.
var wellKnownFolders = map[string]model.FolderType{
	"inbox":       model.FolderInbox,
	"sentitems":   model.FolderSent,
	"drafts":      model.FolderDraft,
	"deleteditems": model.FolderTrash,
	"junkemail":   model.FolderSpam,
	"archive":     model.FolderArchive,
}

type graphFolder struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	ParentFolderID    string `json:"parentFolderId"`
	WellKnownName     string `json:"wellKnownName,omitempty"`
}

// FetchFolders lists the top-level mail folders in a single request.
// Child folders (Graph's childFolders relationship) are not fetched.
func (p *Provider) FetchFolders(ctx context.Context) ([]provider.SyncFolder, error) {
	var resp struct {
		Value []graphFolder `json:"value"`
	}
	if err := p.get(ctx, "/me/mailFolders?$top=250&includeHiddenFolders=true", &resp); err != nil {
		return nil, syncerr.Wrap(syncerr.KindProtocol, "list mail folders", err)
	}

	out := make([]provider.SyncFolder, 0, len(resp.Value))
	for _, f := range resp.Value {
		out = append(out, toSyncFolder(f))
	}
	return out, nil
}

func toSyncFolder(f graphFolder) provider.SyncFolder {
	ft, ok := wellKnownFolders[f.WellKnownName]
	if !ok {
		ft = model.FolderCustom
	}
	return provider.SyncFolder{
		RemoteID:       f.ID,
		Name:           f.DisplayName,
		Type:           ft,
		ParentRemoteID: f.ParentFolderID,
		Path:           f.DisplayName,
	}
}

// RenameFolder updates a mail folder's displayName.
func (p *Provider) RenameFolder(ctx context.Context, folder provider.SyncFolder, newName string) error {
	err := p.patch(ctx, fmt.Sprintf("/me/mailFolders/%s", folder.RemoteID), map[string]string{
		"displayName": newName,
	})
	if err != nil {
		return syncerr.Wrap(syncerr.KindProtocol, "rename folder", err)
	}
	return nil
}

// MoveFolder moves a mail folder under a new parent.
func (p *Provider) MoveFolder(ctx context.Context, folder provider.SyncFolder, newParentRemoteID string) error {
	err := p.post(ctx, fmt.Sprintf("/me/mailFolders/%s/move", folder.RemoteID), map[string]string{
		"destinationId": newParentRemoteID,
	}, nil)
	if err != nil {
		return syncerr.Wrap(syncerr.KindProtocol, "move folder", err)
	}
	return nil
}
