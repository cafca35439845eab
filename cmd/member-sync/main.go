package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/config"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/pipeline"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/server"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "member-sync",
		Short: "Synchronizes member YAML files from object storage into the member database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newRegisterCommand(), newWatchCommand(), newTokenCommand())

	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(signalCtx); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-encoding", defaults.GetString("log.encoding"), "Log encoding (json, console)")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "Postgres DSN")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Object storage backend (minio, filesystem)")
	cmd.PersistentFlags().String("storage-endpoint", "", "MinIO endpoint host:port")
	cmd.PersistentFlags().String("storage-bucket", defaults.GetString("storage.bucket"), "Bucket holding member files")
	cmd.PersistentFlags().String("storage-root", defaults.GetString("storage.root"), "Root directory of the filesystem backend")
	cmd.PersistentFlags().Bool("etag-check", defaults.GetBool("webhook.etag_check_enabled"), "Skip notifications already processed for the same ETag")
	cmd.PersistentFlags().Duration("poll-interval", defaults.GetDuration("poll.interval"), "Storage poll interval (0 disables polling)")
	cmd.PersistentFlags().String("signing-secret", "", "Bearer token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.encoding", "log-encoding")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "storage.endpoint", "storage-endpoint")
	bindFlag(cmd, "storage.bucket", "storage-bucket")
	bindFlag(cmd, "storage.root", "storage-root")
	bindFlag(cmd, "webhook.etag_check_enabled", "etag-check")
	bindFlag(cmd, "poll.interval", "poll-interval")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.logger

	var authorizer server.RequestAuthorizer
	if app.config.Auth.Enabled() {
		validator, err := newTokenValidator(app.config.Auth)
		if err != nil {
			return err
		}
		authorizer = validator
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Notifier:    app.orchestrator,
		Registrar:   app.registrar,
		Authorizer:  authorizer,
		CORSOrigins: app.config.CORSOrigins,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", app.config.HTTPAddress), zap.Bool("auth_enabled", authorizer != nil))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	if app.config.Poll.Interval > 0 {
		poller, err := pipeline.NewPoller(pipeline.PollerConfig{
			Store:          app.store,
			Handler:        app.orchestrator,
			TargetPrefixes: app.prefixes,
			Interval:       app.config.Poll.Interval,
			Prime:          app.config.Poll.Prime,
			Bucket:         app.config.Storage.Bucket,
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		group.Go(func() error {
			if err := poller.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return group.Wait()
}
