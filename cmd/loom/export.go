package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/loomui/loom/internal/demo"
	"github.com/loomui/loom/internal/export"
	"github.com/loomui/loom/pkg/cell"
	"github.com/loomui/loom/pkg/render"
)

func exportCmd() *cobra.Command {
	var (
		outDir    string
		bucket    string
		prefix    string
		region    string
		accessKey string
		secretKey string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the demo application to static HTML",
		Long: `Render the demo application to static HTML files.

With --bucket the exported files are also uploaded to S3 using the
given credentials (or the environment's default credential chain
when no keys are passed).

Examples:
  loom export
  loom export --out=public
  loom export --bucket=my-site --region=eu-west-1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			renderer := render.New(render.Config{Logger: logger})

			store := cell.NewStore()
			demo.Seed(store)

			pages := []export.Page{
				{
					Path: "/",
					Root: demo.App(store),
					Cfg:  render.PageConfig{Title: "Loom Demo", Store: store},
				},
			}

			exporter := export.NewExporter(renderer, outDir, logger)
			files, err := exporter.Export(cmd.Context(), pages)
			if err != nil {
				return err
			}
			fmt.Printf("exported %d file(s) to %s\n", len(files), outDir)

			if bucket == "" {
				return nil
			}

			opts := s3.Options{Region: region}
			if accessKey != "" {
				opts.Credentials = aws.CredentialsProviderFunc(
					func(ctx context.Context) (aws.Credentials, error) {
						return aws.Credentials{
							AccessKeyID:     accessKey,
							SecretAccessKey: secretKey,
						}, nil
					})
			}
			publisher := export.NewS3Publisher(s3.New(opts), bucket, prefix, logger)
			if err := publisher.Publish(cmd.Context(), outDir, files); err != nil {
				return err
			}
			fmt.Printf("published %d file(s) to s3://%s\n", len(files), bucket)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "dist", "Output directory")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket to publish to")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix inside the bucket")
	cmd.Flags().StringVar(&region, "region", "us-east-1", "AWS region")
	cmd.Flags().StringVar(&accessKey, "access-key", "", "AWS access key id")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "AWS secret access key")

	return cmd
}
