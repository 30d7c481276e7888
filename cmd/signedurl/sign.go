package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-signedurl/pkg/signedurl"
)

var (
	signMethod      string
	signExpires     time.Duration
	signContentType string
	signContentMD5  string
	signHeaders     map[string]string
	signQuery       map[string]string
	signVerbose     bool
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Create a signed URL",
}

var signV4Cmd = &cobra.Command{
	Use:   "v4 BUCKET OBJECT",
	Short: "Create a V4 (GOOG4-RSA-SHA256) signed URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v4, _, err := newSigners()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		req := signingRequest()
		req.Expires = signExpires
		res, err := v4.Sign(ctx, args[0], args[1], req)
		if err != nil {
			return err
		}
		if signVerbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "Canonical request:\n%s\n\nString to sign:\n%s\n\n", res.CanonicalRequest, res.StringToSign)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.URL)
		return nil
	},
}

var signV2Cmd = &cobra.Command{
	Use:   "v2 BUCKET OBJECT",
	Short: "Create a legacy V2 signed URL",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, v2, err := newSigners()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		req := signingRequest()
		req.ExpiresAt = time.Now().Add(signExpires)
		res, err := v2.Sign(ctx, args[0], args[1], req)
		if err != nil {
			return err
		}
		if signVerbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "String to sign:\n%s\n\n", res.StringToSign)
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.URL)
		return nil
	},
}

func signingRequest() signedurl.SigningRequest {
	return signedurl.SigningRequest{
		Method:           strings.ToUpper(signMethod),
		ContentType:      signContentType,
		ContentMD5:       signContentMD5,
		ExtensionHeaders: signHeaders,
		QueryParams:      signQuery,
	}
}

func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.AddCommand(signV4Cmd, signV2Cmd)

	flags := signCmd.PersistentFlags()
	flags.StringVarP(&signMethod, "method", "m", "GET", "HTTP method the URL is valid for")
	flags.DurationVarP(&signExpires, "expires", "e", time.Hour, "URL lifetime")
	flags.StringVar(&signContentType, "content-type", "", "Content-Type the client must send")
	flags.StringVar(&signContentMD5, "content-md5", "", "Content-MD5 the client must send")
	flags.StringToStringVarP(&signHeaders, "header", "H", nil, "Extension header name=value the client must send")
	flags.StringToStringVarP(&signQuery, "query", "q", nil, "Extra query parameter name=value")
	flags.BoolVarP(&signVerbose, "verbose", "v", false, "Print the strings that were signed")
}
