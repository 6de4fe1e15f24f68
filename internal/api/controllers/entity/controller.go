package entity

import (
	"context"

	"github.com/lloydmeta/settle/internal/api/controllers/apierr"
	"github.com/lloydmeta/settle/internal/api/models/common"
	"github.com/lloydmeta/settle/internal/api/models/entity"
	"github.com/lloydmeta/settle/internal/domain/record"
	"github.com/lloydmeta/settle/internal/domain/uniqueness"
)

// Controller is an interface that defines the methods that are available to the routing
// layer. It is framework-agnostic
type Controller interface {

	// Create writes the entity into every requested keyspace, or none of them.
	//
	// A rejection is a 409 naming the keys that already exist
	Create(ctx context.Context, newEntity *entity.NewEntity) (*entity.Created, *common.ApiError)
}

func New(coordinator uniqueness.Coordinator) Controller {
	return &impl{coordinator: coordinator}
}

// Unsupported returns a Controller failing every call with err, for backends that cannot
// write atomically across keys
func Unsupported(err error) Controller {
	return &impl{unsupported: err}
}

type impl struct {
	coordinator uniqueness.Coordinator
	unsupported error
}

func (c *impl) Create(ctx context.Context, newEntity *entity.NewEntity) (*entity.Created, *common.ApiError) {
	if c.unsupported != nil {
		return nil, apierr.Handle(c.unsupported)
	}
	hasKeyspaces, hasMappings := len(newEntity.Keyspaces) > 0, len(newEntity.KeyMappings) > 0
	if hasKeyspaces == hasMappings {
		return nil, apierr.Handle(record.InvalidInput{Reason: "exactly one of keyspaces and key_mappings is required"})
	}

	domainEntity := newEntity.ToDomainEntity()
	var result *uniqueness.Result
	var err error
	if hasKeyspaces {
		result, err = c.coordinator.CreateInKeyspaces(ctx, &domainEntity, newEntity.DomainKeyspaces())
	} else {
		result, err = c.coordinator.Create(ctx, &domainEntity, newEntity.DomainKeyMappings())
	}
	if err != nil {
		return nil, apierr.Handle(err)
	}
	if !result.Created {
		return nil, apierr.Rejected(result.ViolatingKeys)
	}
	created := entity.FromDomainResult(result)
	return &created, nil
}
