package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/settle/internal/infra/server"
	"github.com/lloydmeta/settle/internal/infra/storage"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run settle setup",
	Long:  "Prepares the configured store: index templates on Elasticsearch, tables and their aggregation indices on DynamoDB",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		backend, err := storage.Open(ctx, appConfig.Store)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open the store")
		}
		defer backend.Close()

		if err := server.NewSetup(backend, &appConfig).RunIfNeeded(ctx); err != nil {
			log.Fatal().Err(err).Msg("Setup failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
