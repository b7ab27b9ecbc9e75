package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fuomag9/swasthya-link/internal/config"
	"github.com/fuomag9/swasthya-link/internal/database"
	"github.com/fuomag9/swasthya-link/internal/logging"
	"github.com/fuomag9/swasthya-link/internal/oauth"
	"github.com/fuomag9/swasthya-link/internal/tokenstore"
	"github.com/fuomag9/swasthya-link/internal/wearable"
)

// app holds what every subcommand needs: configuration, logger and a
// migrated database.
type app struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Environment, cfg.Log)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	db, err := database.Connect(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(db, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
	_ = a.log.Sync()
}

// tokenStore opens the configured home of the wearable token record
func (a *app) tokenStore(provider string) (tokenstore.Store, error) {
	if a.cfg.TokenStore.Type == "database" {
		return tokenstore.NewGormStore(a.db, provider), nil
	}
	return tokenstore.NewFileStore(a.cfg.TokenStore.Path)
}

// wearableManager wires the OAuth2 client and token lifecycle. It returns
// nil when the connector is not configured.
func (a *app) wearableManager(sessions oauth.SessionStore) (*wearable.Manager, error) {
	if !a.cfg.Wearable.Enabled {
		return nil, nil
	}

	profile, err := oauth.ProfileFromConfig(a.cfg.Wearable)
	if err != nil {
		return nil, err
	}
	store, err := a.tokenStore(profile.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	client := oauth.NewClient(profile, oauth.WithTimeout(a.cfg.Wearable.HTTPTimeout))
	a.log.Info("Wearable connector enabled",
		zap.String("provider", profile.Name),
		zap.String("token_store", a.cfg.TokenStore.Type))
	return wearable.NewManager(a.cfg.Wearable, client, store, sessions, a.log), nil
}

func (a *app) requireWearable() (*wearable.Manager, error) {
	mgr, err := a.wearableManager(oauth.NewGormSessionStore(a.db))
	if err != nil {
		return nil, err
	}
	if mgr == nil {
		return nil, fmt.Errorf("wearable connector disabled: set WEARABLE_PROVIDER and WEARABLE_CLIENT_ID")
	}
	return mgr, nil
}
