package background

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/contact"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
	"github.com/ravnmail/ravncore/internal/storage"
)

const (
	avatarInterval   = 30 * time.Second
	avatarBatchSize  = 20
	avatarCooldown   = 5 * time.Minute
	avatarRateSleep  = 100 * time.Millisecond
	avatarHTTPLimit  = 30 * time.Second
)

// AvatarProviderName identifies one avatar source, tried in configured
// order.
type AvatarProviderName string

const (
	ProviderGravatar AvatarProviderName = "gravatar"
	ProviderUnavatar AvatarProviderName = "unavatar"
	ProviderFavicon  AvatarProviderName = "favicon"
)

// avatarType maps a provider name to the avatar_type recorded on the
// contact row.
func (p AvatarProviderName) avatarType() model.AvatarType {
	switch p {
	case ProviderGravatar:
		return model.AvatarGravatar
	case ProviderUnavatar:
		return model.AvatarUnavatar
	case ProviderFavicon:
		return model.AvatarFavicon
	default:
		return model.AvatarNone
	}
}

// DefaultAvatarProviders is the order tried when none is configured.
var DefaultAvatarProviders = []AvatarProviderName{ProviderUnavatar, ProviderGravatar, ProviderFavicon}

// AvatarFetcher resolves pictures for contacts that have none yet,
// trying each provider in order and skipping any in a rate-limit
// cooldown after an HTTP 429.
type AvatarFetcher struct {
	contacts  *contact.Store
	files     storage.FileStorage
	providers []AvatarProviderName
	http      *http.Client
	interval  time.Duration
	log       zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	cooldownMu    sync.Mutex
	cooldownUntil map[AvatarProviderName]time.Time
}

// NewAvatarFetcher wires the loop. files must be rooted at the app data
// directory (blobs land under contacts/<contact_id>.<ext>). A nil or
// empty providers list uses DefaultAvatarProviders.
func NewAvatarFetcher(contacts *contact.Store, files storage.FileStorage,
	providers []AvatarProviderName, interval time.Duration) *AvatarFetcher {
	if len(providers) == 0 {
		providers = DefaultAvatarProviders
	}
	if interval <= 0 {
		interval = avatarInterval
	}
	return &AvatarFetcher{
		contacts:      contacts,
		files:         files,
		providers:     providers,
		http:          &http.Client{Timeout: avatarHTTPLimit},
		interval:      interval,
		cooldownUntil: make(map[AvatarProviderName]time.Time),
		log:           logging.WithComponent("avatar-fetcher"),
	}
}

// Start launches the fetch loop.
func (a *AvatarFetcher) Start(ctx context.Context) {
	a.runningMu.Lock()
	defer a.runningMu.Unlock()
	if a.running {
		return
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true
	a.wg.Add(1)
	go a.run()
	a.log.Info().Strs("providers", providerNames(a.providers)).Msg("avatar fetcher started")
}

// Stop cancels the loop.
func (a *AvatarFetcher) Stop() {
	a.runningMu.Lock()
	defer a.runningMu.Unlock()
	if !a.running {
		return
	}
	a.cancel()
	a.wg.Wait()
	a.running = false
}

func (a *AvatarFetcher) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.fetchBatch(a.ctx); err != nil {
				a.log.Error().Err(err).Msg("avatar batch failed")
			}
		}
	}
}

func (a *AvatarFetcher) fetchBatch(ctx context.Context) error {
	pending, err := a.contacts.ListNeedingAvatar(avatarBatchSize)
	if err != nil {
		return err
	}
	for i, c := range pending {
		if ctx.Err() != nil {
			break
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(avatarRateSleep):
			}
		}
		a.fetchOne(ctx, c)
	}
	return nil
}

// fetchOne tries each provider in order; the first success wins.
func (a *AvatarFetcher) fetchOne(ctx context.Context, c *model.Contact) {
	for _, p := range a.providers {
		if a.inCooldown(p) {
			continue
		}
		data, ext, err := a.download(ctx, avatarURL(p, c.Email))
		if err != nil {
			if isRateLimited(err) {
				a.startCooldown(p)
			}
			continue
		}
		relPath := fmt.Sprintf("contacts/%s.%s", c.ID, ext)
		if err := a.files.Store(relPath, data); err != nil {
			a.log.Error().Err(err).Str("contact_id", c.ID).Msg("failed to store avatar blob")
			return
		}
		if err := a.contacts.SetAvatar(c.ID, p.avatarType(), relPath); err != nil {
			a.log.Error().Err(err).Str("contact_id", c.ID).Msg("failed to record avatar")
		}
		return
	}
}

// rateLimitedError marks an HTTP 429 so fetchOne can start the
// provider's cooldown.
type rateLimitedError struct{}

func (rateLimitedError) Error() string { return "rate limited (HTTP 429)" }

func isRateLimited(err error) bool {
	_, ok := err.(rateLimitedError)
	return ok
}

func (a *AvatarFetcher) download(ctx context.Context, url string) (data []byte, ext string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", rateLimitedError{}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("avatar fetch status %d", resp.StatusCode)
	}
	data, err = io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty avatar response")
	}
	return data, extFromContentType(resp.Header.Get("Content-Type")), nil
}

func avatarURL(p AvatarProviderName, email string) string {
	switch p {
	case ProviderGravatar:
		sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
		return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=404&s=256", hex.EncodeToString(sum[:]))
	case ProviderFavicon:
		domain := email
		if at := strings.LastIndex(email, "@"); at >= 0 {
			domain = email[at+1:]
		}
		return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=128", domain)
	default:
		return fmt.Sprintf("https://unavatar.io/%s?fallback=false", email)
	}
}

func extFromContentType(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	case strings.Contains(contentType, "icon"):
		return "ico"
	default:
		return "jpg"
	}
}

func (a *AvatarFetcher) inCooldown(p AvatarProviderName) bool {
	a.cooldownMu.Lock()
	defer a.cooldownMu.Unlock()
	return time.Now().Before(a.cooldownUntil[p])
}

func (a *AvatarFetcher) startCooldown(p AvatarProviderName) {
	a.cooldownMu.Lock()
	a.cooldownUntil[p] = time.Now().Add(avatarCooldown)
	a.cooldownMu.Unlock()
	a.log.Warn().Str("provider", string(p)).Dur("cooldown", avatarCooldown).Msg("avatar provider rate limited")
}

func providerNames(ps []AvatarProviderName) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
