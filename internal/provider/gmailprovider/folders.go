package gmailprovider

import (
	"context"

	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/provider"
	"github.com/ravnmail/ravncore/internal/syncerr"
	"google.golang.org/api/gmail/v1"
)

// systemFolderTypes maps Gmail's fixed system label ids onto
// model.FolderType; every other label (including CATEGORY_* and user
// labels) surfaces as FolderCustom.
var systemFolderTypes = map[string]model.FolderType{
	"INBOX": model.FolderInbox,
	"SENT":  model.FolderSent,
	"DRAFT": model.FolderDraft,
	"TRASH": model.FolderTrash,
	"SPAM":  model.FolderSpam,
}

// FetchFolders lists Gmail labels as folders. Gmail has no folder
// hierarchy for system labels; user labels can nest via "/" in Name,
// which is preserved verbatim in Path.
func (p *Provider) FetchFolders(ctx context.Context) ([]provider.SyncFolder, error) {
	resp, err := p.service.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, wrapGoogleErr(syncerr.KindProtocol, "list labels", err)
	}

	out := make([]provider.SyncFolder, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		ft, ok := systemFolderTypes[l.Id]
		if !ok {
			ft = model.FolderCustom
		}
		out = append(out, provider.SyncFolder{
			RemoteID: l.Id,
			Name:     l.Name,
			Type:     ft,
			Path:     l.Name,
		})
	}
	return out, nil
}

// RenameFolder renames a user label; system labels can't be renamed and
// the call fails upstream with a 400, surfaced as KindProtocol.
func (p *Provider) RenameFolder(ctx context.Context, folder provider.SyncFolder, newName string) error {
	_, err := p.service.Users.Labels.Patch("me", folder.RemoteID, &gmail.Label{Name: newName}).Context(ctx).Do()
	if err != nil {
		return wrapGoogleErr(syncerr.KindProtocol, "rename label", err)
	}
	return nil
}

// MoveFolder has no Gmail equivalent: labels are a flat namespace aside
// from the "/" nesting convention in their display name, which
// RenameFolder already covers by renaming with a new path baked in.
func (p *Provider) MoveFolder(ctx context.Context, folder provider.SyncFolder, newParentRemoteID string) error {
	return syncerr.Wrap(syncerr.KindNotSupported, "gmail labels have no separate parent id", nil)
}
