package cmd

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/infra/storage"
)

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
	showCmd.AddCommand(showKeyspacesCmd)
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show information",
	Long:  `Sometimes you just need to know more`,
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config",
	Long:  `Renders the config that we end up using`,
	Run: func(cmd *cobra.Command, args []string) {
		out, err := json.MarshalIndent(&appConfig, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Error marshalling config to JSON")
		} else {
			log.Info().Msg(string(out))
		}
	},
}

var showKeyspacesCmd = &cobra.Command{
	Use:   "keyspaces",
	Short: "Show keyspaces",
	Long:  `Validates the configured keyspaces and lists the attributes their keys are derived from`,
	Run: func(cmd *cobra.Command, args []string) {
		schema, err := storage.NewSchema(appConfig.Keyspaces)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid keyspaces")
		}
		for _, keyspace := range storage.Keyspaces(appConfig.Keyspaces) {
			derivation, _ := schema.Derivation(keyspace)
			separator := derivation.Separator
			if separator == "" {
				separator = record.DefaultSeparator
			}
			log.Info().
				Str("keyspace", string(keyspace)).
				Interface("key_attributes", derivation.Attributes).
				Str("separator", separator).
				Send()
		}
	},
}
