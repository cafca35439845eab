package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/auth"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/config"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/events"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/members"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/pipeline"
	"github.com/s-sasaki-earthsea-wizard/vecr-garage/internal/storage"
)

var errWatchNeedsFilesystem = errors.New("watch requires the filesystem storage backend")

func newRegisterCommand() *cobra.Command {
	var (
		rawMode  string
		rawKinds []string
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register every stored member file",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := pipeline.ParseMode(rawMode)
			if err != nil {
				return err
			}
			kinds, err := parseKinds(rawKinds)
			if err != nil {
				return err
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			report, registerErr := app.registrar.Register(cmd.Context(), pipeline.RegisterRequest{Kinds: kinds, Mode: mode})
			if registerErr != nil && len(report.Errors) == 0 {
				report.Errors = append(report.Errors, registerErr.Error())
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(report); err != nil {
				return err
			}
			if registerErr != nil {
				return registerErr
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d member files failed to register", len(report.Failures))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawMode, "mode", "", "Failure contract: atomic or independent (required)")
	cmd.Flags().StringSliceVar(&rawKinds, "kinds", nil, "Member kinds to register (human, virtual); all when empty")
	_ = cmd.MarkFlagRequired("mode")
	return cmd
}

func parseKinds(rawKinds []string) ([]members.Kind, error) {
	kinds := make([]members.Kind, 0, len(rawKinds))
	for _, rawKind := range rawKinds {
		kind, err := members.ParseKind(rawKind)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the filesystem storage root and reconcile changed member files",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()
			if app.filesystem == nil {
				return errWatchNeedsFilesystem
			}

			watcher, err := storage.NewWatcher(storage.WatcherConfig{
				Store:  app.filesystem,
				Bucket: app.config.Storage.Bucket,
				Logger: app.logger,
			})
			if err != nil {
				return err
			}
			defer watcher.Close()

			app.logger.Info("watching storage root", zap.String("root", app.filesystem.Root()))
			err = watcher.Run(cmd.Context(), func(ctx context.Context, event events.ChangeEvent) {
				result := app.orchestrator.HandleEvents(ctx, []events.ChangeEvent{event})
				if !result.Success {
					app.logger.Warn("watched change not applied",
						zap.String("object", event.ObjectName),
						zap.Strings("errors", result.Errors))
				}
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newTokenCommand() *cobra.Command {
	var (
		subject string
		scopes  []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the webhook and registration routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			authConfig := config.AuthConfig{
				SigningSecret: viper.GetString("auth.signing_secret"),
				Issuer:        viper.GetString("auth.issuer"),
				TokenTTL:      viper.GetDuration("auth.token_ttl"),
			}
			if !authConfig.Enabled() {
				return fmt.Errorf("auth.signing_secret is required to issue tokens")
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(authConfig.SigningSecret),
				Issuer:        authConfig.Issuer,
				TokenTTL:      authConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(subject, scopes...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s (scopes: %s)\n", expiresAt.Format(time.RFC3339), strings.Join(scopesOrDefault(scopes), ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "minio", "Token subject naming the caller")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "Granted scopes (webhook, register); all when empty")
	return cmd
}

func scopesOrDefault(scopes []string) []string {
	if len(scopes) == 0 {
		return []string{auth.ScopeWebhook, auth.ScopeRegister}
	}
	return scopes
}
