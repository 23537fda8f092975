// Package authz is the single source of truth for approval permissions.
// The lifecycle service enforces these rules and the query facade exposes
// them as read-only affordances, so the UI and the engine never disagree.
package authz

import (
	"fmt"

	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// Action is an operation a user may attempt against a request
type Action string

const (
	ActionCreate        Action = "create"
	ActionDecide        Action = "decide"
	ActionSubmitReceipt Action = "submit_receipt"
	ActionView          Action = "view"
)

// Check explains why the user may not perform the action on the request,
// using the entity error taxonomy: a state-based refusal is ErrConflict, a
// role or ownership refusal is ErrAuthorization. State precedes role for
// decisions, so a race loser hears "already finalized" regardless of who it
// is. Returns nil when the action is allowed. For ActionCreate the request
// argument is ignored and may be nil.
func Check(user *entity.User, request *entity.PurchaseRequest, action Action) error {
	if user == nil {
		return fmt.Errorf("%w: no user", entity.ErrAuthorization)
	}

	switch action {
	case ActionCreate:
		if user.Role != entity.RoleStaff {
			return fmt.Errorf("%w: only staff can create purchase requests", entity.ErrAuthorization)
		}
		return nil

	case ActionDecide:
		if request == nil {
			return fmt.Errorf("%w: no request", entity.ErrAuthorization)
		}
		if request.Finalized() {
			return fmt.Errorf("%w: request already %s", entity.ErrConflict, request.Status)
		}
		if !user.Role.IsApprover() {
			return fmt.Errorf("%w: role %s cannot decide requests", entity.ErrAuthorization, user.Role)
		}
		if request.ApprovalBy(user.ID) != nil {
			return fmt.Errorf("%w: approver %s already acted on this request", entity.ErrConflict, user.ID)
		}
		return nil

	case ActionSubmitReceipt:
		if request == nil {
			return fmt.Errorf("%w: no request", entity.ErrAuthorization)
		}
		if request.CreatedBy != user.ID {
			return fmt.Errorf("%w: only the requester can submit a receipt", entity.ErrAuthorization)
		}
		if request.Status != workflow.StateApproved {
			return fmt.Errorf("%w: receipts are accepted only for approved requests", entity.ErrConflict)
		}
		if request.Receipt != "" {
			return fmt.Errorf("%w: a receipt was already submitted", entity.ErrConflict)
		}
		return nil

	case ActionView:
		if request == nil {
			return fmt.Errorf("%w: no request", entity.ErrAuthorization)
		}
		switch user.Role {
		case entity.RoleFinance:
			return nil
		case entity.RoleStaff:
			if request.CreatedBy == user.ID {
				return nil
			}
		case entity.RoleApproverL1, entity.RoleApproverL2:
			if request.Status == workflow.StatePending || request.ApprovalBy(user.ID) != nil {
				return nil
			}
		}
		return fmt.Errorf("%w: request not visible to %s", entity.ErrAuthorization, user.ID)
	}

	return fmt.Errorf("%w: unknown action %s", entity.ErrAuthorization, action)
}

// CanAct decides whether the user may perform the action on the request
func CanAct(user *entity.User, request *entity.PurchaseRequest, action Action) bool {
	return Check(user, request, action) == nil
}

// Permissions is the affordance block attached to read responses
type Permissions struct {
	CanDecide        bool `json:"can_decide"`
	CanSubmitReceipt bool `json:"can_submit_receipt"`
}

// PermissionsFor computes the UI affordances for a user on a request,
// mirroring CanAct exactly.
func PermissionsFor(user *entity.User, request *entity.PurchaseRequest) Permissions {
	return Permissions{
		CanDecide:        CanAct(user, request, ActionDecide),
		CanSubmitReceipt: CanAct(user, request, ActionSubmitReceipt),
	}
}
