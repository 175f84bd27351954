package cmd

import (
	"context"
	"fmt"
	"time"

	"contact-manager/core/config"
	"contact-manager/core/database"
	"contact-manager/core/logger"
	"contact-manager/core/storage"
	"contact-manager/feature/contacts"
	"contact-manager/feature/dedupe"
	"contact-manager/feature/sharing"
	"contact-manager/feature/sync"
	"contact-manager/feature/sync/directory"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application bundles the wired-up services shared by all commands.
type application struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	contactStore *contacts.Store
	contacts     *contacts.Feature
	dedupe       *dedupe.Feature
	sharing      *sharing.Feature
	sync         *sync.Feature
}

// buildApplication loads configuration and wires every feature. The database
// is optional: without it contacts live in memory only. Directory profiles
// are optional too; sharing through the copy store works without them.
func buildApplication(ctx context.Context) (*application, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logg)

	owner := cfg.Server.Owner

	var db *gorm.DB
	if conn, err := database.Connect(cfg.Database); err != nil {
		logg.Warn("Optional database connection failed, contacts stay in memory", zap.Error(err))
	} else {
		db = conn
		logg = logg.With(zap.String("owner", owner))
		logg.Info("Connected to contact database")
	}

	store, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	contactStore := contacts.NewStore(logg)
	dedupeSvc := dedupe.NewService(contacts.NewCandidateSource(contactStore), logg)
	dedupeFeature := dedupe.NewFeature(dedupeSvc, logg)

	contactsFeature := contacts.NewFeature(contactStore, db, owner, dedupeSvc, logg)
	if err := contactsFeature.Service().Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate contact schema: %w", err)
	}
	if err := contactsFeature.Service().Hydrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to hydrate contact store: %w", err)
	}

	profiles, err := directory.ParseProfiles(cfg.Sync.Endpoints, cfg.Sync.Username, cfg.Sync.Token, cfg.Sync.Addressbook)
	if err != nil {
		return nil, err
	}

	var dir directory.Client
	var cleaner sharing.RemoteCleaner
	if len(profiles) > 0 {
		httpClient := directory.NewHTTPClient(time.Duration(cfg.Sync.TimeoutSeconds)*time.Second, logg)
		dir = httpClient
		cleaner = sync.NewShareCleaner(httpClient, profiles, logg)
	}

	sharingFeature, err := sharing.NewFeature(
		contactsFeature.Service(), store, cfg.Storage.Bucket, owner,
		cfg.Sharing.Lists, cfg.Sharing.FanoutWorkers, cleaner, logg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sharing: %w", err)
	}

	syncFeature := sync.NewFeature(cfg.Sync, owner,
		contactsFeature.Service(), sharingFeature.Service(), dedupeSvc,
		dir, profiles, logg)

	return &application{
		cfg:          cfg,
		log:          logg,
		db:           db,
		contactStore: contactStore,
		contacts:     contactsFeature,
		dedupe:       dedupeFeature,
		sharing:      sharingFeature,
		sync:         syncFeature,
	}, nil
}
