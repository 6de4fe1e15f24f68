package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.elastic.co/apm"

	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/infra/apm/tracing"
	"github.com/lloydmeta/settle/internal/infra/server"
	"github.com/lloydmeta/settle/internal/infra/storage"
)

// withDomain opens the store, builds the domain services and hands them to run inside an APM
// transaction, tagging every log line with a fresh run id
func withDomain(name string, run func(ctx context.Context, domain *server.Domain) error) (err error) {
	runId := uuid.New().String()
	log.Logger = log.With().Str("run_id", runId).Logger()
	tx := tracing.NewTracer().BackgroundTx(context.Background(), name)
	defer func() {
		if err != nil {
			tx.SetResult("failed")
		} else {
			tx.SetResult("ok")
		}
		tx.End()
		apm.DefaultTracer.Flush(nil)
	}()
	ctx := tx.Context()

	backend, err := storage.Open(ctx, appConfig.Store)
	if err != nil {
		return err
	}
	defer backend.Close()
	domain, err := server.NewDomain(&appConfig, backend)
	if err != nil {
		return err
	}
	return run(ctx, domain)
}

// parseAttributes parses "name=value" pairs
func parseAttributes(pairs []string) (map[string]string, error) {
	attributes := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("expected name=value, got [%s]", pair)
		}
		attributes[parts[0]] = parts[1]
	}
	return attributes, nil
}

func printJson(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

// apiFailure turns an ApiError into a process failure, printing its body first
func apiFailure(apiErr *common.ApiError) error {
	_ = printJson(apiErr.Body)
	return fmt.Errorf("failed with status [%d]", apiErr.StatusCode)
}
