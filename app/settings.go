package app

import (
	"github.com/ravnmail/ravncore/internal/navigation"
)

// GetSetting resolves one dot-notation settings key.
func (a *App) GetSetting(key string) (any, bool) {
	return a.Settings.Get(key)
}

// SetSetting writes one dot-notation settings key. Object values are
// flattened one level to leaf keys; arrays are stored atomically.
func (a *App) SetSetting(key string, value any) error {
	return a.Settings.Set(key, value)
}

// RemoveSetting deletes a user override.
func (a *App) RemoveSetting(key string) error {
	return a.Settings.Remove(key)
}

// GetAllSettings returns the merged defaults+user settings tree.
func (a *App) GetAllSettings() map[string]any {
	return a.Settings.GetAll()
}

// GetUserSettingKeys lists the keys the user has overridden.
func (a *App) GetUserSettingKeys() []string {
	return a.Settings.GetUserKeys()
}

// ParseNavigationURL converts a ravn:// deep link into a router path.
func (a *App) ParseNavigationURL(raw string) (string, error) {
	u, err := navigation.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.RouterPath(), nil
}

// UpdateBadgeCount recomputes and broadcasts the badge count.
func (a *App) UpdateBadgeCount() (int, error) {
	return a.Badge.UpdateBadgeCount()
}

// GetBadgeCount returns the current badge count without broadcasting;
// a disabled badge reads as zero.
func (a *App) GetBadgeCount() (int, error) {
	count, _, err := a.Badge.BadgeCount()
	return count, err
}
