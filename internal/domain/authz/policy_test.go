package authz

import (
	"errors"
	"testing"

	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

func staff(id string) *entity.User {
	return &entity.User{ID: id, Username: id, Role: entity.RoleStaff}
}

func approver(id string, role entity.Role) *entity.User {
	return &entity.User{ID: id, Username: id, Role: role}
}

func pendingRequest(createdBy string) *entity.PurchaseRequest {
	return &entity.PurchaseRequest{
		ID:        "req-1",
		Status:    workflow.StatePending,
		CreatedBy: createdBy,
	}
}

func TestCanAct_Create(t *testing.T) {
	tests := []struct {
		name     string
		user     *entity.User
		expected bool
	}{
		{"staff can create", staff("alice"), true},
		{"approver cannot create", approver("bob", entity.RoleApproverL1), false},
		{"finance cannot create", approver("carol", entity.RoleFinance), false},
		{"nil user cannot create", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAct(tt.user, nil, ActionCreate); got != tt.expected {
				t.Errorf("CanAct(create) = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCanAct_Decide(t *testing.T) {
	decided := pendingRequest("alice")
	decided.Approvals = []*entity.Approval{{ApproverID: "bob", Approved: true}}

	approved := pendingRequest("alice")
	approved.Status = workflow.StateApproved

	tests := []struct {
		name     string
		user     *entity.User
		request  *entity.PurchaseRequest
		expected bool
	}{
		{"level 1 approver on pending", approver("bob", entity.RoleApproverL1), pendingRequest("alice"), true},
		{"level 2 approver on pending", approver("dave", entity.RoleApproverL2), pendingRequest("alice"), true},
		{"staff cannot decide", staff("alice"), pendingRequest("alice"), false},
		{"finance cannot decide", approver("carol", entity.RoleFinance), pendingRequest("alice"), false},
		{"approver who already acted", approver("bob", entity.RoleApproverL1), decided, false},
		{"other approver after a decision", approver("dave", entity.RoleApproverL2), decided, true},
		{"finalized request", approver("bob", entity.RoleApproverL1), approved, false},
		{"nil request", approver("bob", entity.RoleApproverL1), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAct(tt.user, tt.request, ActionDecide); got != tt.expected {
				t.Errorf("CanAct(decide) = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCanAct_SubmitReceipt(t *testing.T) {
	approved := pendingRequest("alice")
	approved.Status = workflow.StateApproved

	withReceipt := pendingRequest("alice")
	withReceipt.Status = workflow.StateApproved
	withReceipt.Receipt = "receipts/req-1/receipt.pdf"

	tests := []struct {
		name     string
		user     *entity.User
		request  *entity.PurchaseRequest
		expected bool
	}{
		{"creator on approved request", staff("alice"), approved, true},
		{"non-creator on approved request", staff("eve"), approved, false},
		{"creator on pending request", staff("alice"), pendingRequest("alice"), false},
		{"creator after receipt exists", staff("alice"), withReceipt, false},
		{"nil request", staff("alice"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAct(tt.user, tt.request, ActionSubmitReceipt); got != tt.expected {
				t.Errorf("CanAct(submit_receipt) = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCanAct_View(t *testing.T) {
	rejected := pendingRequest("alice")
	rejected.Status = workflow.StateRejected

	rejectedByBob := pendingRequest("alice")
	rejectedByBob.Status = workflow.StateRejected
	rejectedByBob.Approvals = []*entity.Approval{{ApproverID: "bob", Approved: false}}

	tests := []struct {
		name     string
		user     *entity.User
		request  *entity.PurchaseRequest
		expected bool
	}{
		{"creator sees own request", staff("alice"), pendingRequest("alice"), true},
		{"staff cannot see others", staff("eve"), pendingRequest("alice"), false},
		{"finance sees everything", approver("carol", entity.RoleFinance), rejected, true},
		{"approver sees pending", approver("bob", entity.RoleApproverL1), pendingRequest("alice"), true},
		{"approver loses sight of finalized", approver("bob", entity.RoleApproverL1), rejected, false},
		{"approver keeps sight of own decision", approver("bob", entity.RoleApproverL1), rejectedByBob, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAct(tt.user, tt.request, ActionView); got != tt.expected {
				t.Errorf("CanAct(view) = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCheck_ErrorKinds(t *testing.T) {
	decided := pendingRequest("alice")
	decided.Approvals = []*entity.Approval{{ApproverID: "bob", Approved: true}}

	approved := pendingRequest("alice")
	approved.Status = workflow.StateApproved

	withReceipt := pendingRequest("alice")
	withReceipt.Status = workflow.StateApproved
	withReceipt.Receipt = "receipts/req-1/receipt.pdf"

	tests := []struct {
		name    string
		user    *entity.User
		request *entity.PurchaseRequest
		action  Action
		wantErr error
	}{
		{"approver may decide pending", approver("bob", entity.RoleApproverL1), pendingRequest("alice"), ActionDecide, nil},
		{"staff decision is a role refusal", staff("alice"), pendingRequest("alice"), ActionDecide, entity.ErrAuthorization},
		{"duplicate decision is a conflict", approver("bob", entity.RoleApproverL1), decided, ActionDecide, entity.ErrConflict},
		{"decision on finalized is a conflict", approver("bob", entity.RoleApproverL1), approved, ActionDecide, entity.ErrConflict},
		{"stranger receipt is a role refusal", staff("eve"), approved, ActionSubmitReceipt, entity.ErrAuthorization},
		{"receipt on pending is a conflict", staff("alice"), pendingRequest("alice"), ActionSubmitReceipt, entity.ErrConflict},
		{"second receipt is a conflict", staff("alice"), withReceipt, ActionSubmitReceipt, entity.ErrConflict},
		{"approver creation is a role refusal", approver("bob", entity.RoleApproverL1), nil, ActionCreate, entity.ErrAuthorization},
		{"nil user is a role refusal", nil, pendingRequest("alice"), ActionDecide, entity.ErrAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.user, tt.request, tt.action)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Check(%s) = %v, want %v", tt.action, err, tt.wantErr)
			}
		})
	}
}

// A finalized request outranks the actor's role: the loser of a decision race
// hears conflict, not forbidden, even when it could never have decided.
func TestCheck_StatePrecedesRole(t *testing.T) {
	approved := pendingRequest("alice")
	approved.Status = workflow.StateApproved

	err := Check(staff("eve"), approved, ActionDecide)
	if !errors.Is(err, entity.ErrConflict) {
		t.Errorf("Check(decide) on finalized by non-approver = %v, want %v", err, entity.ErrConflict)
	}
}

func TestPermissionsFor(t *testing.T) {
	request := pendingRequest("alice")

	perms := PermissionsFor(approver("bob", entity.RoleApproverL1), request)
	if !perms.CanDecide {
		t.Errorf("PermissionsFor() approver CanDecide = false, want true")
	}
	if perms.CanSubmitReceipt {
		t.Errorf("PermissionsFor() approver CanSubmitReceipt = true, want false")
	}

	request.Status = workflow.StateApproved
	perms = PermissionsFor(staff("alice"), request)
	if perms.CanDecide {
		t.Errorf("PermissionsFor() creator CanDecide = true, want false")
	}
	if !perms.CanSubmitReceipt {
		t.Errorf("PermissionsFor() creator CanSubmitReceipt = false, want true")
	}
}
