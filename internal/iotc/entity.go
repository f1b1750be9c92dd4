package iotc

import (
	"context"

	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/api"
	"github.com/avnet-iotconnect/iotc-go-rest-api/internal/metrics"
)

// Entity is a node of the account's entity tree.
type Entity struct {
	GUID        string `json:"guid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentGUID  string `json:"parentEntityGuid,omitempty"`
	ChildCount  int    `json:"childEntitiesCount,omitempty"`
	DeviceCount int    `json:"deviceCount,omitempty"`
}

// IsRoot reports whether e has no parent.
func (e Entity) IsRoot() bool {
	return e.ParentGUID == ""
}

// EntityService reads the entity tree.
type EntityService struct{ *service }

// List returns every entity of the account.
func (s *EntityService) List(ctx context.Context) ([]Entity, error) {
	resp, err := s.do(ctx, &api.Request{
		BaseURL: s.endpoints.User,
		Path:    "/Entity/lookup",
		Service: metrics.ServiceUser,
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeList[Entity](resp)
}

// GetByName returns the entity with the given name, or nil.
func (s *EntityService) GetByName(ctx context.Context, name string) (*Entity, error) {
	if err := required("entity lookup", "entity name", name); err != nil {
		return nil, err
	}
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, func(e Entity) bool { return e.Name == name })
}

// Root returns the entity without a parent, or nil.
func (s *EntityService) Root(ctx context.Context) (*Entity, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return api.FindOne(list, Entity.IsRoot)
}
