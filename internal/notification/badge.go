// Package notification computes the OS dock/tray badge count from
// folder unread counters and the user's badge-folder configuration.
package notification

import (
	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/config"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/logging"
)

// badgeFoldersKey holds the configured badge folder ids: an empty list
// means every folder counts; an absent key means the badge is disabled.
const badgeFoldersKey = "notifications.badge_folders"

// BadgeService resolves and publishes the badge count.
type BadgeService struct {
	folders  *folder.Store
	settings *config.Settings
	bus      *events.Bus
	log      zerolog.Logger
}

// NewBadgeService wires the service.
func NewBadgeService(folders *folder.Store, settings *config.Settings, bus *events.Bus) *BadgeService {
	return &BadgeService{folders: folders, settings: settings, bus: bus, log: logging.WithComponent("badge")}
}

// BadgeCount returns the current badge value and whether the badge is
// enabled at all.
func (s *BadgeService) BadgeCount() (count int, enabled bool, err error) {
	raw, ok := s.settings.Get(badgeFoldersKey)
	if !ok {
		return 0, false, nil
	}
	ids := toStringList(raw)
	count, err = s.folders.SumUnread(ids)
	if err != nil {
		return 0, true, err
	}
	return count, true, nil
}

// UpdateBadgeCount recomputes the badge and announces it on the bus.
func (s *BadgeService) UpdateBadgeCount() (int, error) {
	count, enabled, err := s.BadgeCount()
	if err != nil {
		return 0, err
	}
	if !enabled {
		return 0, nil
	}
	if s.bus != nil {
		s.bus.Emit(events.BadgeCountUpdated, count)
	}
	return count, nil
}

// toStringList coerces the JSON-decoded settings value ([]any of
// strings) into a []string, dropping anything else.
func toStringList(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		if ss, ok := raw.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
