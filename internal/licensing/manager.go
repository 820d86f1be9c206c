package licensing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/ids"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
)

// Manager caches the activation state in the license_cache table and
// exposes the license_* command surface. The full license key is never
// persisted; only its masked form is kept for display.
type Manager struct {
	db     *database.DB
	client *Client
	bus    *events.Bus
	log    zerolog.Logger
}

// NewManager wires a manager over the cache table and wire client.
func NewManager(db *database.DB, client *Client, bus *events.Bus) *Manager {
	return &Manager{db: db, client: client, bus: bus, log: logging.WithComponent("license-manager")}
}

// MaskKey keeps the first and last four characters of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// instanceID returns the stable per-install id, allocating one on first
// use.
func (m *Manager) instanceID() (string, error) {
	var id string
	err := m.db.QueryRow(`SELECT instance_id FROM license_cache LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		id = ids.New()
		_, err = m.db.Exec(`INSERT INTO license_cache (instance_id) VALUES (?)`, id)
		if err != nil {
			return "", fmt.Errorf("allocate instance id: %w", err)
		}
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("read instance id: %w", err)
	}
	return id, nil
}

// Activate exchanges a license key for an activation and caches it.
func (m *Manager) Activate(ctx context.Context, licenseKey string) (*model.License, error) {
	instance, err := m.instanceID()
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Activate(ctx, instance, licenseKey)
	if err != nil {
		return nil, err
	}
	return m.cache(instance, licenseKey, resp)
}

// StartTrial requests a trial for the given email and caches it.
func (m *Manager) StartTrial(ctx context.Context, email string) (*model.License, error) {
	instance, err := m.instanceID()
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Trial(ctx, instance, email)
	if err != nil {
		return nil, err
	}
	return m.cache(instance, resp.LicenseKey, resp)
}

// Validate re-checks licenseKey against the server and refreshes the
// cache. With an empty licenseKey it returns the cached state without
// contacting the server.
func (m *Manager) Validate(ctx context.Context, licenseKey string) (*model.License, error) {
	instance, err := m.instanceID()
	if err != nil {
		return nil, err
	}
	if licenseKey == "" {
		return m.Status()
	}
	resp, err := m.client.Validate(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	return m.cache(instance, licenseKey, resp)
}

// Status returns the cached license record without contacting the
// server.
func (m *Manager) Status() (*model.License, error) {
	row := m.db.QueryRow(`
		SELECT instance_id, key_masked, user, mode, ai_mode, expires_at, trial_ends_at, validated_at
		FROM license_cache LIMIT 1
	`)
	lic := &model.License{}
	var mode, aiMode string
	var expiresAt, trialEndsAt, validatedAt sql.NullTime
	err := row.Scan(&lic.InstanceID, &lic.KeyMasked, &lic.User, &mode, &aiMode,
		&expiresAt, &trialEndsAt, &validatedAt)
	if err == sql.ErrNoRows {
		return &model.License{Mode: model.LicenseUnlicensed, AIMode: model.AIModeSaaS}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read license cache: %w", err)
	}
	lic.Mode = model.LicenseMode(mode)
	lic.AIMode = model.AIMode(aiMode)
	if expiresAt.Valid {
		lic.ExpiresAt = &expiresAt.Time
	}
	if trialEndsAt.Valid {
		lic.TrialEndsAt = &trialEndsAt.Time
	}
	if validatedAt.Valid {
		lic.ValidatedAt = &validatedAt.Time
	}
	return lic, nil
}

// Clear resets the cached license back to unlicensed, keeping the
// instance id.
func (m *Manager) Clear() error {
	_, err := m.db.Exec(`
		UPDATE license_cache SET key_masked = '', user = '', mode = 'unlicensed',
			ai_mode = 'saas', expires_at = NULL, trial_ends_at = NULL, validated_at = NULL
	`)
	if err != nil {
		return fmt.Errorf("clear license cache: %w", err)
	}
	if m.bus != nil {
		m.bus.Emit(events.LicenseUpdated, nil)
	}
	return nil
}

func (m *Manager) cache(instanceID, licenseKey string, resp *ActivationResponse) (*model.License, error) {
	now := time.Now().UTC()
	lic := &model.License{
		InstanceID:  instanceID,
		KeyMasked:   MaskKey(licenseKey),
		User:        resp.User,
		Mode:        model.LicenseMode(resp.Mode),
		AIMode:      model.AIMode(resp.AIMode),
		ValidatedAt: &now,
	}
	if lic.Mode == "" {
		lic.Mode = model.LicenseLicensed
	}
	if lic.AIMode == "" {
		lic.AIMode = model.AIModeSaaS
	}
	if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
		lic.ExpiresAt = &t
	}
	if t, err := time.Parse(time.RFC3339, resp.TrialEndsAt); err == nil {
		lic.TrialEndsAt = &t
	}

	_, err := m.db.Exec(`
		UPDATE license_cache SET key_masked = ?, user = ?, mode = ?, ai_mode = ?,
			expires_at = ?, trial_ends_at = ?, validated_at = ?
		WHERE instance_id = ?
	`, lic.KeyMasked, lic.User, string(lic.Mode), string(lic.AIMode),
		lic.ExpiresAt, lic.TrialEndsAt, lic.ValidatedAt, instanceID)
	if err != nil {
		return nil, fmt.Errorf("cache license: %w", err)
	}
	if m.bus != nil {
		m.bus.Emit(events.LicenseUpdated, lic)
	}
	return lic, nil
}
