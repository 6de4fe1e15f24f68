package uniqueness

import (
	"context"

	"github.com/lloydmeta/settle/internal/domain/record"
)

type MockCoordinator struct {
	CreateCalled              uint
	CreateOverride            func(entity *Entity, keyMappings []record.KeyRef) (*Result, error)
	CreateInKeyspacesCalled   uint
	CreateInKeyspacesOverride func(entity *Entity, keyspaces []record.Keyspace) (*Result, error)
}

func (m *MockCoordinator) Create(ctx context.Context, entity *Entity, keyMappings []record.KeyRef) (*Result, error) {
	m.CreateCalled++
	if m.CreateOverride != nil {
		return m.CreateOverride(entity, keyMappings)
	} else {
		return &Result{Created: true, KeyMappings: keyMappings}, nil
	}
}

func (m *MockCoordinator) CreateInKeyspaces(ctx context.Context, entity *Entity, keyspaces []record.Keyspace) (*Result, error) {
	m.CreateInKeyspacesCalled++
	if m.CreateInKeyspacesOverride != nil {
		return m.CreateInKeyspacesOverride(entity, keyspaces)
	} else {
		mappings := make([]record.KeyRef, 0, len(keyspaces))
		for _, ks := range keyspaces {
			mappings = append(mappings, record.KeyRef{Keyspace: ks, Key: "mock"})
		}
		return &Result{Created: true, KeyMappings: mappings}, nil
	}
}
