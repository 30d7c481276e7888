// Package app assembles keys, the token cache, signers and the ledger from
// configuration. Both commands share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/tendant/simple-signedurl/pkg/signedurl"
	"github.com/tendant/simple-signedurl/pkg/signedurl/api"
	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
	"github.com/tendant/simple-signedurl/pkg/signedurl/config"
	"github.com/tendant/simple-signedurl/pkg/signedurl/interop"
	"github.com/tendant/simple-signedurl/pkg/signedurl/keys"
	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger"
	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger/memory"
	"github.com/tendant/simple-signedurl/pkg/signedurl/ledger/postgres"
)

// URLSigner signs both V4 and V2 URLs. *keys.RSAKey and *keys.IAMSigner
// implement it.
type URLSigner interface {
	signedurl.SigningKey
	signedurl.V2Key
}

// App holds the wired components
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Key    *keys.RSAKey
	Tokens *auth.Cache
	V4     *signedurl.V4Signer
	V2     *signedurl.V2Signer
	HMAC   *interop.Presigner
	Ledger ledger.Store

	pool *pgxpool.Pool
}

// NewLogger returns a tint handler backed logger. Colors are off in
// production.
func NewLogger(w io.Writer, cfg config.ServerConfig) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    cfg.IsProduction(),
	}))
}

// LoadKey reads the service account key file.
func LoadKey(path string) (*keys.RSAKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	return keys.LoadServiceAccount(raw)
}

// New wires every component described by cfg. Close releases the database
// pool, if any.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	key, err := LoadKey(cfg.Signer.CredentialsFile)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Key:    key,
	}

	a.Tokens = auth.NewCache(
		auth.NewJWTAssertionSigner(key.ClientEmail(), key.PrivateKey(), key.KeyID()),
		auth.WithScope(cfg.Signer.Scope),
		auth.WithTTL(cfg.Signer.TokenTTL),
		auth.WithRenewMargin(cfg.Signer.TokenRenew),
		auth.WithLogger(logger),
	)

	a.V4, a.V2 = NewSigners(a.signingKey(), cfg.Signer.HostTemplate, logger)

	if cfg.HMAC.Enabled() {
		a.HMAC, err = interop.New(ctx, interop.Config{
			AccessID: cfg.HMAC.AccessID,
			Secret:   cfg.HMAC.Secret,
			Bucket:   cfg.HMAC.Bucket,
			Expires:  cfg.HMAC.Expires,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := a.openLedger(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// signingKey is the local key, or IAM signBlob acting as the configured
// account with tokens minted from the local key.
func (a *App) signingKey() URLSigner {
	if account := a.Config.Signer.IAMAccount; account != "" {
		a.Logger.Info("Signing through IAM signBlob", "service_account", account)
		return keys.NewIAMSigner(account, a.Tokens, keys.WithIAMLogger(a.Logger))
	}
	return a.Key
}

// NewSigners builds the V4 and V2 signers over one key.
func NewSigners(key URLSigner, hostTemplate string, logger *slog.Logger) (*signedurl.V4Signer, *signedurl.V2Signer) {
	opts := []signedurl.Option{
		signedurl.WithHostTemplate(hostTemplate),
		signedurl.WithLogger(logger),
	}
	return signedurl.NewV4Signer(signedurl.StaticKey(key), opts...),
		signedurl.NewV2Signer(signedurl.V2SignFuncFromKey(key), opts...)
}

func (a *App) openLedger(ctx context.Context) error {
	dbType, err := a.Config.DB.Type()
	if err != nil {
		return err
	}
	if dbType == "memory" {
		a.Ledger = memory.New()
		return nil
	}

	pool, err := pgxpool.New(ctx, a.Config.DB.URL)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	store := postgres.NewWithPool(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}
	a.pool = pool
	a.Ledger = store
	return nil
}

// Handler builds the HTTP API over the wired components.
func (a *App) Handler() *api.Handler {
	opts := []api.Option{
		api.WithV2Signer(a.V2),
		api.WithLedger(a.Ledger),
		api.WithJWTSecret(a.Config.Server.JWTSecret),
		api.WithLogger(a.Logger),
	}
	// Access tokens are only handed out behind JWT verification.
	if a.Config.Server.JWTSecret != "" {
		opts = append(opts, api.WithTokenSource(a.Tokens))
	}
	if a.HMAC != nil {
		opts = append(opts, api.WithHMACPresigner(a.HMAC))
	}
	return api.NewHandler(a.V4, opts...)
}

// Close releases resources.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
