package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	entityController "github.com/lloydmeta/settle/internal/api/controllers/entity"
	"github.com/lloydmeta/settle/internal/api/models/entity"
	"github.com/lloydmeta/settle/internal/infra/server"
)

var (
	createKeyspaces      []string
	createAttributes     []string
	createAggregationKey string
	createTimestamp      int64
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an entity",
	Long: `Writes one mirror record per keyspace for the entity, all or nothing. Keys are derived
from the attributes through the configured keyspaces.`,
	Example: `settle create --keyspace order_by_poid_gk --keyspace order_by_poid_geid --attr poid=p1 --attr gk=g1 --attr geid=e1`,
	Run: func(cmd *cobra.Command, args []string) {
		err := withDomain("create", func(ctx context.Context, domain *server.Domain) error {
			attributes, err := parseAttributes(createAttributes)
			if err != nil {
				return err
			}
			newEntity := entity.NewEntity{
				Attributes:     attributes,
				AggregationKey: createAggregationKey,
				Keyspaces:      createKeyspaces,
			}
			if createTimestamp != 0 {
				newEntity.Timestamp = &createTimestamp
			}
			var controller entityController.Controller
			if domain.Coordinator != nil {
				controller = entityController.New(domain.Coordinator)
			} else {
				controller = entityController.Unsupported(domain.CoordinatorErr)
			}
			created, apiErr := controller.Create(ctx, &newEntity)
			if apiErr != nil {
				return apiFailure(apiErr)
			}
			return printJson(created)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Create failed")
		}
	},
}

func init() {
	createCmd.Flags().StringSliceVar(&createKeyspaces, "keyspace", nil, "keyspace to create the entity in (repeatable)")
	createCmd.Flags().StringArrayVar(&createAttributes, "attr", nil, "entity attribute as name=value (repeatable)")
	createCmd.Flags().StringVar(&createAggregationKey, "aggregation-key", "", "parent of the entity")
	createCmd.Flags().Int64Var(&createTimestamp, "timestamp", 0, "event timestamp in epoch millis (defaults to now)")
	_ = createCmd.MarkFlagRequired("keyspace")
	rootCmd.AddCommand(createCmd)
}
