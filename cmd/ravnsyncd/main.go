// ravnsyncd is the sync daemon: it opens the local mirror, starts the
// coordinator, the four background loops and the WAL checkpoint routine,
// and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	appsurface "github.com/ravnmail/ravncore/app"
	"github.com/ravnmail/ravncore/internal/account"
	"github.com/ravnmail/ravncore/internal/background"
	"github.com/ravnmail/ravncore/internal/config"
	"github.com/ravnmail/ravncore/internal/contact"
	"github.com/ravnmail/ravncore/internal/conversation"
	"github.com/ravnmail/ravncore/internal/credentials"
	"github.com/ravnmail/ravncore/internal/database"
	"github.com/ravnmail/ravncore/internal/email"
	"github.com/ravnmail/ravncore/internal/enrich"
	"github.com/ravnmail/ravncore/internal/events"
	"github.com/ravnmail/ravncore/internal/folder"
	"github.com/ravnmail/ravncore/internal/label"
	"github.com/ravnmail/ravncore/internal/licensing"
	"github.com/ravnmail/ravncore/internal/logging"
	"github.com/ravnmail/ravncore/internal/notification"
	"github.com/ravnmail/ravncore/internal/oauth2state"
	"github.com/ravnmail/ravncore/internal/oauthcfg"
	"github.com/ravnmail/ravncore/internal/providersource"
	"github.com/ravnmail/ravncore/internal/searchindex"
	"github.com/ravnmail/ravncore/internal/storage"
	"github.com/ravnmail/ravncore/internal/syncstate"
	"github.com/ravnmail/ravncore/internal/synccoordinator"
)

var (
	dataDir     string
	debugMode   bool
	concurrency int
	enrichURL   string
	enrichKey   string
	licenseURL  string
)

func main() {
	root := &cobra.Command{
		Use:   "ravnsyncd",
		Short: "Mail synchronization daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "application data directory")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	root.PersistentFlags().IntVar(&concurrency, "concurrency", 4, "folder sync worker count")
	root.PersistentFlags().StringVar(&enrichURL, "enrich-url", "https://corvus.ravnmail.com", "AI enrichment service URL")
	root.PersistentFlags().StringVar(&enrichKey, "enrich-key", "", "AI enrichment API key")
	root.PersistentFlags().StringVar(&licenseURL, "license-url", "https://licensing.ravnmail.com", "license activation server URL")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "ravn")
}

func run(ctx context.Context) error {
	logging.Init(debugMode || os.Getenv("RAVN_DEBUG") == "1")
	log := logging.WithComponent("main")

	if err := oauthcfg.Validate(); err != nil {
		return fmt.Errorf("refusing to start: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := database.Open(filepath.Join(dataDir, "ravn.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	attachmentFiles, err := storage.NewLocalFileStorage(filepath.Join(dataDir, "attachments"))
	if err != nil {
		return fmt.Errorf("open attachment storage: %w", err)
	}
	dataFiles, err := storage.NewLocalFileStorage(dataDir)
	if err != nil {
		return fmt.Errorf("open data storage: %w", err)
	}

	settings, err := config.New(filepath.Join(dataDir, "settings.default.json5"), filepath.Join(dataDir, "settings.json5"))
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	creds, err := credentials.NewStore(db.DB, dataDir)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	bus := events.NewBus()
	accounts := account.NewStore(db)
	folders := folder.NewStore(db)
	emails := email.NewStore(db)
	conversations := conversation.NewStore(db)
	contacts := contact.NewStore(db)
	labels := label.NewStore(db)
	syncStates := syncstate.NewStore(db)
	index := searchindex.New(db)

	source := providersource.New(creds)
	defer source.Shutdown()

	folderSync := folder.NewSyncer(folders, bus)
	emailSync := email.NewSyncer(emails, folders, syncStates, conversations, contacts, index, attachmentFiles, bus)

	coordinator := synccoordinator.New(accounts, folders, folderSync, emailSync, syncStates, source, bus, concurrency)

	bodyFetcher := background.NewBodyFetcher(emails, emailSync, accounts, folders, source, bus, 0)
	analyzer := background.NewAIAnalyzer(emails, enrich.NewClient(enrichURL, enrichKey), bus, 0)
	avatars := background.NewAvatarFetcher(contacts, dataFiles, nil, 0)
	cleanup := background.NewCleanup(emails, labels, index, attachmentFiles, 0)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	db.StartCheckpointRoutine(runCtx)
	coordinator.Start(runCtx)
	bodyFetcher.Start(runCtx)
	analyzer.Start(runCtx)
	avatars.Start(runCtx)
	cleanup.Start(runCtx)

	a := appsurface.New(runCtx)
	a.Accounts = accounts
	a.Folders = folders
	a.Emails = emails
	a.Conversations = conversations
	a.Contacts = contacts
	a.Labels = labels
	a.Index = index
	a.Settings = settings
	a.Badge = notification.NewBadgeService(folders, settings, bus)
	a.Licenses = licensing.NewManager(db, licensing.NewClient(licenseURL), bus)
	a.Coordinator = coordinator
	a.Cleanup = cleanup
	a.Credentials = creds
	a.OAuthStates = oauth2state.NewManager()
	a.Bus = bus

	log.Info().Str("data_dir", dataDir).Msg("ravnsyncd running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	cleanup.Stop()
	avatars.Stop()
	analyzer.Stop()
	bodyFetcher.Stop()
	coordinator.Stop()
	return nil
}
