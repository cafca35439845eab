package main

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/auth"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/config"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/database"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/dedup"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/logging"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/pipeline"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

// application holds the components shared by the subcommands.
type application struct {
	config       config.AppConfig
	logger       *zap.Logger
	db           *gorm.DB
	store        storage.ObjectStore
	filesystem   *storage.FilesystemStore
	prefixes     []dedup.TargetPrefix
	service      *members.Service
	orchestrator *pipeline.Orchestrator
	registrar    *pipeline.Registrar
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogEncoding)
	if err != nil {
		return nil, err
	}

	prefixes, err := dedup.ParseTargetPrefixes(appConfig.Webhook.TargetPrefixes)
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, prefixes: prefixes}
	if err := app.openStore(); err != nil {
		_ = logger.Sync()
		return nil, err
	}

	db, err := database.Open(database.Config{
		Driver: appConfig.Database.Driver,
		Path:   appConfig.Database.Path,
		DSN:    appConfig.Database.DSN,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	app.db = db

	service, err := members.NewService(members.ServiceConfig{
		Database:   db,
		IDProvider: members.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.service = service

	orchestrator, err := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{
		Store:          app.store,
		Reconciler:     service,
		Cache:          dedup.NewMemoryCache(appConfig.Webhook.CacheSize),
		DedupEnabled:   appConfig.Webhook.ETagCheckEnabled,
		TargetPrefixes: prefixes,
		Logger:         logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.orchestrator = orchestrator

	registrar, err := pipeline.NewRegistrar(pipeline.RegistrarConfig{
		Store:          app.store,
		Reconciler:     service,
		TargetPrefixes: prefixes,
		Logger:         logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.registrar = registrar

	return app, nil
}

func (a *application) openStore() error {
	storageConfig := a.config.Storage
	var base storage.ObjectStore
	switch storageConfig.Backend {
	case config.StorageBackendFilesystem:
		filesystem, err := storage.NewFilesystemStore(storageConfig.Root)
		if err != nil {
			return err
		}
		a.filesystem = filesystem
		base = filesystem
	case config.StorageBackendMinIO:
		minioStore, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  storageConfig.Endpoint,
			AccessKey: storageConfig.AccessKey,
			SecretKey: storageConfig.SecretKey,
			Bucket:    storageConfig.Bucket,
			UseSSL:    storageConfig.UseSSL,
			Timeout:   storageConfig.Timeout,
		})
		if err != nil {
			return err
		}
		base = minioStore
	default:
		return fmt.Errorf("unsupported storage backend %q", storageConfig.Backend)
	}

	a.store = storage.NewRateLimited(base, storage.RateLimitConfig{
		RequestsPerSecond: storageConfig.ReadRPS,
		BurstSize:         storageConfig.ReadBurst,
	})
	a.logger.Info("object storage configured",
		zap.String("backend", storageConfig.Backend),
		zap.String("bucket", storageConfig.Bucket),
		zap.Float64("read_rps", storageConfig.ReadRPS))
	return nil
}

// Close releases the database handle and flushes the logger.
func (a *application) Close() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}

func newTokenValidator(cfg config.AuthConfig) (*auth.TokenValidator, error) {
	return auth.NewTokenValidator(auth.TokenValidatorConfig{
		SigningSecret: []byte(cfg.SigningSecret),
		Issuer:        cfg.Issuer,
	})
}
