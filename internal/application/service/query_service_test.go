package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

func TestQueryService_List(t *testing.T) {
	f := newFixture()
	query := NewQueryService(f.repo, mockLogger{})

	mine := f.createRequest(t, nil)
	f.approvedRequest(t)

	if _, err := f.service.Create(context.Background(), eve, CreateRequestInput{
		Title:       "Standing desk",
		Description: "For the new hire",
		Amount:      mine.Amount,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("staff see only their own", func(t *testing.T) {
		results, err := query.List(context.Background(), alice, "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("List() returned %d requests, want 2", len(results))
		}
		for _, r := range results {
			if r.CreatedBy != alice.ID {
				t.Errorf("staff listing leaked request %s owned by %s", r.ID, r.CreatedBy)
			}
		}
	})

	t.Run("approvers see pending work", func(t *testing.T) {
		results, err := query.List(context.Background(), dave, "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		for _, r := range results {
			if r.Status != workflow.StatePending {
				t.Errorf("approver listing included %s request %s without their decision", r.Status, r.ID)
			}
		}
		if len(results) != 2 {
			t.Errorf("List() returned %d requests, want 2 pending", len(results))
		}
	})

	t.Run("finance sees everything", func(t *testing.T) {
		results, err := query.List(context.Background(), carol, "")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(results) != 3 {
			t.Errorf("List() returned %d requests, want 3", len(results))
		}
	})

	t.Run("status filter applies", func(t *testing.T) {
		results, err := query.List(context.Background(), carol, workflow.StateApproved)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("List(approved) returned %d requests, want 1", len(results))
		}
		if results[0].Status != workflow.StateApproved {
			t.Errorf("Status = %v, want approved", results[0].Status)
		}
	})

	t.Run("unknown status is a validation error", func(t *testing.T) {
		_, err := query.List(context.Background(), carol, workflow.State("archived"))
		if !errors.Is(err, entity.ErrValidation) {
			t.Errorf("List() error = %v, want ErrValidation", err)
		}
	})
}

func TestQueryService_Get(t *testing.T) {
	f := newFixture()
	query := NewQueryService(f.repo, mockLogger{})
	request := f.createRequest(t, nil)

	t.Run("creator gets request with permissions", func(t *testing.T) {
		got, perms, err := query.Get(context.Background(), alice, request.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.ID != request.ID {
			t.Errorf("ID = %v, want %v", got.ID, request.ID)
		}
		if perms.CanDecide {
			t.Error("creator CanDecide = true, want false")
		}
	})

	t.Run("approver sees decision affordance", func(t *testing.T) {
		_, perms, err := query.Get(context.Background(), bob, request.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !perms.CanDecide {
			t.Error("approver CanDecide = false, want true")
		}
	})

	t.Run("hidden requests look missing", func(t *testing.T) {
		_, _, err := query.Get(context.Background(), eve, request.ID)
		if !errors.Is(err, entity.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		_, _, err := query.Get(context.Background(), carol, "missing")
		if !errors.Is(err, entity.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})
}
