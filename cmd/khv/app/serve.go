// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/keyhive/pkg/api"
	"github.com/stacklok/keyhive/pkg/audit"
	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/auth/oauth"
	"github.com/stacklok/keyhive/pkg/config"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/logger"
	"github.com/stacklok/keyhive/pkg/sharing"
	"github.com/stacklok/keyhive/pkg/storage/sqlite"
	"github.com/stacklok/keyhive/pkg/vault"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keyhive API server",
		Long: `Starts the keyhive API server and listens for HTTP requests.

Required environment:
  KEYHIVE_MASTER_KEY     base64 encoded 32-byte vault master key
  KEYHIVE_JWT_SECRET     secret signing bearer access tokens
  KEYHIVE_DATABASE_URL   SQLite path or DSN`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx)
		},
	}

	cmd.Flags().String("host", config.DefaultHost, "Host address to bind the server to")
	cmd.Flags().Int("port", config.DefaultPort, "Port to bind the server to")
	cmd.Flags().String("database-url", "", "SQLite database path or DSN")
	// Flags override the matching environment variables.
	_ = viper.BindPFlag("host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("database-url", cmd.Flags().Lookup("database-url"))

	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	cipher, err := crypto.New(cfg.MasterKey)
	if err != nil {
		return err
	}

	db, err := sqlite.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	accounts := sqlite.NewAccountStore(db)
	entries := sqlite.NewEntryStore(db)
	auditStore := sqlite.NewAuditStore(db)
	recorder := audit.NewAsyncRecorder(auditStore)
	keys := auth.NewKeyService(accounts, cipher)

	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return err
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Auth: auth.NewManager(
			accounts, sqlite.NewRefreshTokenStore(db), keys, issuer, recorder,
			auth.Config{BcryptCost: cfg.BcryptCost, RefreshTTL: cfg.RefreshTokenTTL},
		),
		Vault: vault.NewManager(
			entries, sqlite.NewCollectionStore(db), sqlite.NewTagStore(db), keys, recorder,
		),
		Shares:    sharing.NewManager(sqlite.NewShareStore(db), entries, keys, recorder),
		Audit:     auditStore,
		Providers: providers,
		Pinger:    db,
	}

	// The audit writer and the HTTP server run until the signal context
	// cancels; the writer drains its queue before returning.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return recorder.Run(groupCtx)
	})
	group.Go(func() error {
		return api.Serve(groupCtx, cfg, deps)
	})
	return group.Wait()
}

// buildProviders assembles the configured OAuth providers. Unconfigured
// providers are simply absent, not errors.
func buildProviders(ctx context.Context, cfg *config.Config) ([]oauth.Provider, error) {
	var providers []oauth.Provider

	if cfg.Google.Enabled() {
		google, err := oauth.NewGoogle(ctx, oauth.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectBase + "/api/auth/google/callback",
		})
		if err != nil {
			return nil, fmt.Errorf("configuring google sign-in: %w", err)
		}
		providers = append(providers, google)
		logger.Info("google sign-in enabled")
	} else {
		logger.Info("google sign-in disabled, no client credentials configured")
	}

	if cfg.GitHub.Enabled() {
		providers = append(providers, oauth.NewGitHub(oauth.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.OAuthRedirectBase + "/api/auth/github/callback",
		}))
		logger.Info("github sign-in enabled")
	} else {
		logger.Info("github sign-in disabled, no client credentials configured")
	}

	return providers, nil
}
