// The signedurl command issues Cloud Storage signed URLs and access tokens
// from a service account key on the command line.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-signedurl/internal/app"
	"github.com/tendant/simple-signedurl/pkg/signedurl"
	"github.com/tendant/simple-signedurl/pkg/signedurl/auth"
	"github.com/tendant/simple-signedurl/pkg/signedurl/config"
	"github.com/tendant/simple-signedurl/pkg/signedurl/keys"
)

var (
	credentialsFile string
	hostTemplate    string
	iamAccount      string
	scope           string
	logLevel        string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "signedurl",
	Short:         "Issue Cloud Storage signed URLs",
	Long:          `signedurl creates V4 and V2 signed URLs for Cloud Storage objects, prints OAuth2 access tokens minted from a service account key, and moves objects through the JSON and XML APIs.`,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = app.NewLogger(os.Stderr, config.ServerConfig{LogLevel: logLevel})
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&credentialsFile, "credentials", "c", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "Service account JSON key file")
	flags.StringVar(&hostTemplate, "host-template", signedurl.DefaultHostTemplate, "Host of signed URLs, %s is the bucket")
	flags.StringVar(&iamAccount, "iam-account", "", "Sign through IAM signBlob as this service account")
	flags.StringVar(&scope, "scope", auth.DefaultScope, "OAuth2 scope of access tokens")
	flags.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
}

func loadKey() (*keys.RSAKey, error) {
	if credentialsFile == "" {
		return nil, errors.New("no credentials: pass --credentials or set GOOGLE_APPLICATION_CREDENTIALS")
	}
	return app.LoadKey(credentialsFile)
}

func newTokenCache(key *keys.RSAKey) *auth.Cache {
	return auth.NewCache(
		auth.NewJWTAssertionSigner(key.ClientEmail(), key.PrivateKey(), key.KeyID()),
		auth.WithScope(scope),
		auth.WithLogger(logger),
	)
}

func newSigners() (*signedurl.V4Signer, *signedurl.V2Signer, error) {
	key, err := loadKey()
	if err != nil {
		return nil, nil, err
	}
	var signer app.URLSigner = key
	if iamAccount != "" {
		signer = keys.NewIAMSigner(iamAccount, newTokenCache(key), keys.WithIAMLogger(logger))
	}
	v4, v2 := app.NewSigners(signer, hostTemplate, logger)
	return v4, v2, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 2*time.Minute)
}
