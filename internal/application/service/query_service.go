package service

import (
	"context"
	"fmt"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/authz"
	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// QueryService is the read facade consumed by the UI layer. It never writes;
// visibility and affordances come straight from the authorization policy so
// the UI cannot drift from what the engine enforces.
type QueryService interface {
	List(ctx context.Context, actor *entity.User, status workflow.State) ([]*entity.PurchaseRequest, error)
	Get(ctx context.Context, actor *entity.User, id string) (*entity.PurchaseRequest, authz.Permissions, error)
}

type queryServiceImpl struct {
	requestRepo port.RequestRepository
	logger      Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(requestRepo port.RequestRepository, logger Logger) QueryService {
	return &queryServiceImpl{
		requestRepo: requestRepo,
		logger:      logger,
	}
}

// List returns requests visible to the actor in creation order, newest
// first. Staff see their own, approvers see pending plus requests they
// acted on, finance sees everything.
func (s *queryServiceImpl) List(ctx context.Context, actor *entity.User, status workflow.State) ([]*entity.PurchaseRequest, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", entity.ErrValidation, status)
	}

	filter := port.RequestFilter{Status: status}
	if actor.Role == entity.RoleStaff {
		filter.CreatedBy = actor.ID
	}

	requests, err := s.requestRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err)
		return nil, err
	}

	visible := make([]*entity.PurchaseRequest, 0, len(requests))
	for _, r := range requests {
		if authz.CanAct(actor, r, authz.ActionView) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// Get returns one request with its approvals plus the actor's affordances
func (s *queryServiceImpl) Get(ctx context.Context, actor *entity.User, id string) (*entity.PurchaseRequest, authz.Permissions, error) {
	request, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		return nil, authz.Permissions{}, err
	}
	if !authz.CanAct(actor, request, authz.ActionView) {
		// Hidden requests are indistinguishable from missing ones
		return nil, authz.Permissions{}, fmt.Errorf("%w: request %s", entity.ErrNotFound, id)
	}

	return request, authz.PermissionsFor(actor, request), nil
}
