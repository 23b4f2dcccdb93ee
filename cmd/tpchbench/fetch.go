package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/pgduckdb/tpchbench/internal/app"
	"github.com/pgduckdb/tpchbench/internal/config"
)

func makeFetchCommand(g *globalFlags) *cobra.Command {
	var (
		outputDir   = "."
		storageType string
		storagePath string
		s3Bucket    string
	)
	runCmdFunc := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, g,
			func(cfg *config.Config) error {
				flags := cmd.Flags()
				if flags.Changed("storage-type") {
					cfg.Storage.Type = storageType
				}
				if flags.Changed("storage-path") {
					cfg.Storage.Path = storagePath
				}
				if flags.Changed("s3-bucket") {
					cfg.Storage.S3.Bucket = s3Bucket
				}
				return nil
			},
			func(ctx context.Context, a *app.App) error {
				_, err := a.FetchRun(ctx, args[0], outputDir)
				return err
			})
	}
	cmd := &cobra.Command{
		Use:   "fetch RUN",
		Short: "Download the archived artifacts of a run",
		Long: `Download the results file and chart archived for a run. RUN is a full run id
or the short id printed by "runs". Compressed artifacts are decompressed.`,
		Args: cobra.ExactArgs(1),
		RunE: runCmdFunc,
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", outputDir, "directory to write the artifacts to")
	cmd.Flags().StringVar(&storageType, "storage-type", storageType, "artifact storage: local, s3")
	cmd.Flags().StringVar(&storagePath, "storage-path", storagePath, "local artifact storage path")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", s3Bucket, "S3 bucket for artifacts")
	return cmd
}
