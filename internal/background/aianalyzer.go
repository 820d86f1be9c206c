package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ravnmail/ravncore/internal/email"
	"github.com/ravnmail/ravncore/internal/enrich"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/model"
)

const (
	analysisInterval  = 10 * time.Second
	analysisBatchSize = 5
)

// AIAnalyzer enriches personal-inbox messages: inbox-only, non-draft,
// body present, ai_cache still empty. The result is written verbatim to
// the ai_cache column and announced on the bus. A per-email in-flight
// guard prevents double work when a batch outlives one tick.
type AIAnalyzer struct {
	emails   *email.Store
	enricher enrich.Enricher
	bus      *events.Bus
	interval time.Duration
	log      zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	runningMu sync.Mutex

	active   map[string]bool
	activeMu sync.Mutex
}

// NewAIAnalyzer wires the loop. interval <= 0 uses the default cadence.
func NewAIAnalyzer(emails *email.Store, enricher enrich.Enricher, bus *events.Bus, interval time.Duration) *AIAnalyzer {
	if interval <= 0 {
		interval = analysisInterval
	}
	return &AIAnalyzer{
		emails: emails, enricher: enricher, bus: bus, interval: interval,
		active: make(map[string]bool),
		log:    logging.WithComponent("ai-analyzer"),
	}
}

// Start launches the analysis loop.
func (a *AIAnalyzer) Start(ctx context.Context) {
	a.runningMu.Lock()
	defer a.runningMu.Unlock()
	if a.running {
		return
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.running = true
	a.wg.Add(1)
	go a.run()
	a.log.Info().Msg("ai analyzer started")
}

// Stop cancels the loop; in-flight analyses finish first.
func (a *AIAnalyzer) Stop() {
	a.runningMu.Lock()
	defer a.runningMu.Unlock()
	if !a.running {
		return
	}
	a.cancel()
	a.wg.Wait()
	a.running = false
}

func (a *AIAnalyzer) run() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.analyzeBatch(a.ctx); err != nil {
				a.log.Error().Err(err).Msg("analysis batch failed")
			}
		}
	}
}

func (a *AIAnalyzer) analyzeBatch(ctx context.Context) error {
	pending, err := a.emails.ListAIPending(analysisBatchSize)
	if err != nil {
		return err
	}
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		if !a.claim(e.ID) {
			continue
		}
		a.analyzeOne(ctx, e)
		a.release(e.ID)
	}
	return nil
}

func (a *AIAnalyzer) analyzeOne(ctx context.Context, e *model.Email) {
	result, err := a.enricher.AnalyzeEmail(ctx, e.Subject, e.BodyPlain, e.BodyHTML)
	if err != nil {
		a.log.Debug().Err(err).Str("email_id", e.ID).Msg("enrichment failed")
		return
	}
	if err := a.emails.SetAICache(e.ID, result); err != nil {
		a.log.Error().Err(err).Str("email_id", e.ID).Msg("failed to cache analysis")
		return
	}
	if a.bus != nil {
		a.bus.Emit(events.EmailAIAnalysisDone, e.ID)
	}
}

func (a *AIAnalyzer) claim(emailID string) bool {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	if a.active[emailID] {
		return false
	}
	a.active[emailID] = true
	return true
}

func (a *AIAnalyzer) release(emailID string) {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	delete(a.active, emailID)
}
