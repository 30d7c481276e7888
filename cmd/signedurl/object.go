package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-signedurl/pkg/signedurl/storage"
)

var (
	objectContentType     string
	objectContentEncoding string
	objectPublic          bool
	objectOutput          string
)

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Upload and download objects through the JSON API",
}

var objectPutCmd = &cobra.Command{
	Use:   "put BUCKET OBJECT FILE",
	Short: "Upload FILE as OBJECT",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newStorageClient(args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[2])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		var obj *storage.Object
		if objectPublic || objectContentEncoding != "" {
			obj, err = client.Put(ctx, args[1], f, objectContentType, objectContentEncoding)
		} else {
			obj, err = client.Create(ctx, args[1], f, objectContentType)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "gs://%s/%s (%d bytes, generation %d)\n", obj.Bucket, obj.Name, obj.Size, obj.Generation)
		return nil
	},
}

var objectGetCmd = &cobra.Command{
	Use:   "get BUCKET OBJECT",
	Short: "Download OBJECT to stdout or --output",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newStorageClient(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		rc, err := client.Get(ctx, args[1])
		if err != nil {
			return err
		}
		defer rc.Close()

		out := cmd.OutOrStdout()
		if objectOutput != "" {
			f, err := os.Create(objectOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		_, err = io.Copy(out, rc)
		return err
	},
}

func newStorageClient(bucket string) (*storage.Client, error) {
	key, err := loadKey()
	if err != nil {
		return nil, err
	}
	return storage.New(bucket, newTokenCache(key), storage.WithLogger(logger))
}

func init() {
	rootCmd.AddCommand(objectCmd)
	objectCmd.AddCommand(objectPutCmd, objectGetCmd)

	objectPutCmd.Flags().StringVar(&objectContentType, "content-type", "", "Content-Type of the object")
	objectPutCmd.Flags().StringVar(&objectContentEncoding, "content-encoding", "", "Content-Encoding of the object, e.g. gzip")
	objectPutCmd.Flags().BoolVar(&objectPublic, "public", false, "Make the object publicly readable")
	objectGetCmd.Flags().StringVarP(&objectOutput, "output", "o", "", "Write to this file instead of stdout")
}
