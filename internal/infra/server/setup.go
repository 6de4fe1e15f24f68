package server

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/lloydmeta/settle/internal/config"
	"github.com/lloydmeta/settle/internal/infra/dynamo"
	"github.com/lloydmeta/settle/internal/infra/elasticsearch/index"
	"github.com/lloydmeta/settle/internal/infra/storage"
)

// Setup abstracts away:
//
// 1. Setting up the backing store for running Settle
// 2. Checking that things are set up
type Setup interface {

	// Check returns an error if all the necessary setup is not complete
	Check(ctx context.Context) error

	// RunIfNeeded attempts to run the subroutines necessary, no more no less
	RunIfNeeded(ctx context.Context) error
}

// subroutine is one backend's setup
type subroutine interface {
	Check(ctx context.Context) error
	Run(ctx context.Context) error
}

type impl struct {
	subroutine subroutine
}

// NewSetup returns the Setup of the opened backend. Embedded backends need none.
func NewSetup(backend *storage.Backend, appConfig *config.App) Setup {
	switch {
	case backend.Elasticsearch != nil:
		templates := index.RecordsTemplateSetup(backend.Elasticsearch, backend.ElasticsearchStore.IndexPrefix())
		return &impl{subroutine: &templates}
	case backend.DynamoDB != nil:
		tables := dynamo.NewTablesSetup(backend.DynamoDB, *appConfig.Store.DynamoDB, storage.Keyspaces(appConfig.Keyspaces))
		return &impl{subroutine: &tables}
	default:
		return &impl{}
	}
}

func (i *impl) Check(ctx context.Context) error {
	if i.subroutine == nil {
		return nil
	}
	return i.subroutine.Check(ctx)
}

func (i *impl) RunIfNeeded(ctx context.Context) error {
	if i.subroutine == nil {
		log.Info().Msg("Nothing to set up")
		return nil
	}
	if err := i.subroutine.Check(ctx); err == nil {
		log.Info().Msg("Setup already complete")
		return nil
	} else {
		switch err.(type) {
		case index.TemplatesNotInstalled, dynamo.TablesNotCreated:
			log.Info().Err(err).Msg("Running setup")
		default:
			return err
		}
	}
	if err := i.subroutine.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Setup failed")
		return err
	}
	log.Info().Msg("Setup complete")
	return nil
}
