package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	reconcileController "github.com/lloydmeta/settle/internal/api/controllers/reconcile"
	"github.com/lloydmeta/settle/internal/api/models/reconcile"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/infra/server"
)

// recordKeyAttribute names the explicit key inside a --record value
const recordKeyAttribute = "_key"

var (
	reconcileKeyspace       string
	reconcileAggregationKey string
	reconcileEventTimestamp int64
	reconcileRecords        []string
	reconcileSnapshotFile   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the children of a parent",
	Long: `Makes the children of an aggregation key match a snapshot as of its event timestamp, and
prints the per-record report. The snapshot is either a JSON file, or built from --record values
of comma separated name=value attributes, where "_key" sets the key explicitly.`,
	Example: `settle reconcile --keyspace vendor --aggregation-key r1 --event-timestamp 1583064000000 --record pvid=a,gk=g --record _key=b<<>>g,pvid=b,gk=g`,
	Run: func(cmd *cobra.Command, args []string) {
		err := withDomain("reconcile", func(ctx context.Context, domain *server.Domain) error {
			snapshot, err := buildSnapshot()
			if err != nil {
				return err
			}
			controller := reconcileController.New(domain.Engines, domain.Schema)
			report, apiErr := controller.Reconcile(ctx, record.Keyspace(reconcileKeyspace), record.AggregationKey(reconcileAggregationKey), snapshot)
			if apiErr != nil {
				return apiFailure(apiErr)
			}
			return printJson(report)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Reconcile failed")
		}
	},
}

func buildSnapshot() (*reconcile.Snapshot, error) {
	var snapshot reconcile.Snapshot
	if reconcileSnapshotFile != "" {
		raw, err := os.ReadFile(reconcileSnapshotFile)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			return nil, err
		}
	}
	if reconcileEventTimestamp != 0 {
		snapshot.EventTimestamp = reconcileEventTimestamp
	}
	for _, raw := range reconcileRecords {
		attributes, err := parseAttributes(strings.Split(raw, ","))
		if err != nil {
			return nil, err
		}
		desired := reconcile.DesiredRecord{Key: attributes[recordKeyAttribute]}
		delete(attributes, recordKeyAttribute)
		desired.Attributes = attributes
		snapshot.Records = append(snapshot.Records, desired)
	}
	return &snapshot, nil
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileKeyspace, "keyspace", "", "keyspace of the children")
	reconcileCmd.Flags().StringVar(&reconcileAggregationKey, "aggregation-key", "", "parent whose children are reconciled")
	reconcileCmd.Flags().Int64Var(&reconcileEventTimestamp, "event-timestamp", 0, "event timestamp in epoch millis; overrides the snapshot file's")
	reconcileCmd.Flags().StringArrayVar(&reconcileRecords, "record", nil, "desired child as comma separated name=value attributes (repeatable)")
	reconcileCmd.Flags().StringVar(&reconcileSnapshotFile, "snapshot", "", "JSON snapshot file, as accepted by the HTTP API")
	_ = reconcileCmd.MarkFlagRequired("keyspace")
	_ = reconcileCmd.MarkFlagRequired("aggregation-key")
	rootCmd.AddCommand(reconcileCmd)
}
