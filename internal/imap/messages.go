package imap

import (
	"fmt"

	"github.com/emersion/go-imap/v2"
)

// Message operations. All of these require a previously Selected
// mailbox and address messages by UID only — sequence numbers shift
// under concurrent expunges, UIDs don't.

func uidSetOf(uids []uint32) imap.UIDSet {
	set := imap.UIDSet{}
	for _, uid := range uids {
		set.AddNum(imap.UID(uid))
	}
	return set
}

// SetFlags adds or removes one flag on the given messages, silently (no
// untagged FETCH echo to parse).
func (s *Session) SetFlags(uids []uint32, flag imap.Flag, on bool) error {
	if len(uids) == 0 {
		return nil
	}
	op := imap.StoreFlagsAdd
	if !on {
		op = imap.StoreFlagsDel
	}
	store := imap.StoreFlags{Op: op, Flags: []imap.Flag{flag}, Silent: true}
	if err := s.cli.Store(uidSetOf(uids), &store, nil).Close(); err != nil {
		return fmt.Errorf("store flags: %w", err)
	}
	return nil
}

// Expunge flags the messages \Deleted and removes them, preferring
// UID EXPUNGE (UIDPLUS) so only these messages go, not everything else
// already flagged \Deleted by another client.
func (s *Session) Expunge(uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	if err := s.SetFlags(uids, imap.FlagDeleted, true); err != nil {
		return err
	}
	if s.caps.Has(imap.CapUIDPlus) {
		if err := s.cli.UIDExpunge(uidSetOf(uids)).Close(); err != nil {
			return fmt.Errorf("uid expunge: %w", err)
		}
		return nil
	}
	if err := s.cli.Expunge().Close(); err != nil {
		return fmt.Errorf("expunge: %w", err)
	}
	return nil
}

// Move copies the messages to dest and expunges them from the selected
// mailbox — the COPY+EXPUNGE emulation of MOVE, which works on every
// server regardless of the MOVE extension.
func (s *Session) Move(uids []uint32, dest string) error {
	if len(uids) == 0 {
		return nil
	}
	if _, err := s.cli.Copy(uidSetOf(uids), dest).Wait(); err != nil {
		return fmt.Errorf("copy to %s: %w", dest, err)
	}
	return s.Expunge(uids)
}

// Rename moves/renames a mailbox; IMAP expresses both as RENAME over
// full paths.
func (s *Session) Rename(oldPath, newPath string) error {
	if err := s.cli.Rename(oldPath, newPath, nil).Wait(); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}
