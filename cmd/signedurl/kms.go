package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-signedurl/pkg/signedurl/keys"
)

var kmsEndpoint string

var kmsCmd = &cobra.Command{
	Use:   "kms",
	Short: "Inspect Cloud KMS asymmetric signing keys",
}

var kmsPublicKeyCmd = &cobra.Command{
	Use:   "public-key CRYPTO_KEY VERSION",
	Short: "Print the PEM public key of a Cloud KMS key version",
	Long:  `CRYPTO_KEY is the key's resource name, projects/P/locations/L/keyRings/R/cryptoKeys/K. Requests carry an access token when --credentials is set.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := keys.KMSConfig{CryptoKey: args[0], Endpoint: kmsEndpoint}
		if credentialsFile != "" {
			key, err := loadKey()
			if err != nil {
				return err
			}
			cfg.Tokens = newTokenCache(key)
		}
		client, err := keys.NewKMSClient(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		pub, err := client.PublicKey(ctx, args[1])
		if err != nil {
			return err
		}
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return fmt.Errorf("failed to encode public key: %w", err)
		}
		return pem.Encode(cmd.OutOrStdout(), &pem.Block{Type: "PUBLIC KEY", Bytes: der})
	},
}

func init() {
	kmsPublicKeyCmd.Flags().StringVar(&kmsEndpoint, "endpoint", keys.DefaultKMSEndpoint, "Cloud KMS API base URL")

	kmsCmd.AddCommand(kmsPublicKeyCmd)
	rootCmd.AddCommand(kmsCmd)
}
