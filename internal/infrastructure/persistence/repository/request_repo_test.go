package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
	"github.com/dmarkova/procureflow/internal/infrastructure/persistence/sqlite"
	"github.com/dmarkova/procureflow/pkg/database"
)

func setupTestDB(t *testing.T) *sqlite.DB {
	return openTestDB(t, 1)
}

func openTestDB(t *testing.T, maxConns int) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	sqlDB, err := database.Open(database.Config{
		Path:            filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    maxConns,
		MaxIdleConns:    maxConns,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	migrator := database.NewMigrator(sqlDB, logger)
	require.NoError(t, migrator.RunMigrations("../../../../migrations"))

	return sqlite.NewDB(sqlDB, logger)
}

func seedUser(t *testing.T, users *UserRepository, id string, role entity.Role) *entity.User {
	t.Helper()
	user := &entity.User{
		ID:        id,
		Username:  id,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func newRequest(createdBy string) *entity.PurchaseRequest {
	now := time.Now().UTC()
	return &entity.PurchaseRequest{
		ID:          "req-" + createdBy,
		Title:       "New laptops",
		Description: "Three dev machines",
		Amount:      decimal.RequireFromString("1499.97"),
		Status:      workflow.StatePending,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRequestRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zap.NewNop())
	requests := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	seedUser(t, users, "alice", entity.RoleStaff)

	request := newRequest("alice")
	request.ProformaData = &entity.ProformaData{
		Vendor:      "Acme Corp",
		TotalAmount: decimal.RequireFromString("1499.97"),
		Items: []entity.LineItem{
			{Name: "Laptop", Quantity: 3, UnitPrice: decimal.RequireFromString("499.99")},
		},
	}
	require.NoError(t, requests.Create(ctx, request))
	assert.EqualValues(t, 1, request.Version)

	got, err := requests.GetByID(ctx, request.ID)
	require.NoError(t, err)

	assert.Equal(t, request.Title, got.Title)
	assert.True(t, got.Amount.Equal(request.Amount), "amount round-trip")
	assert.Equal(t, workflow.StatePending, got.Status)
	assert.Empty(t, got.Approvals)

	require.NotNil(t, got.Creator)
	assert.Equal(t, "alice", got.Creator.Username)
	assert.Equal(t, entity.RoleStaff, got.Creator.Role)

	require.NotNil(t, got.ProformaData)
	assert.Equal(t, "Acme Corp", got.ProformaData.Vendor)
	require.Len(t, got.ProformaData.Items, 1)
	assert.True(t, got.ProformaData.Items[0].UnitPrice.Equal(decimal.RequireFromString("499.99")))

	assert.Nil(t, got.ReceiptData)
	assert.Nil(t, got.ReceiptValidation)
	assert.Nil(t, got.PurchaseOrderData)
}

func TestRequestRepository_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	requests := NewRequestRepository(db, zap.NewNop())

	_, err := requests.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestRequestRepository_List(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zap.NewNop())
	requests := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	seedUser(t, users, "alice", entity.RoleStaff)
	seedUser(t, users, "eve", entity.RoleStaff)

	first := newRequest("alice")
	first.CreatedAt = time.Now().UTC().Add(-time.Hour)
	first.UpdatedAt = first.CreatedAt
	require.NoError(t, requests.Create(ctx, first))

	second := newRequest("eve")
	require.NoError(t, requests.Create(ctx, second))

	t.Run("newest first", func(t *testing.T) {
		all, err := requests.List(ctx, port.RequestFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].ID)
		assert.Equal(t, first.ID, all[1].ID)
	})

	t.Run("filter by creator", func(t *testing.T) {
		mine, err := requests.List(ctx, port.RequestFilter{CreatedBy: "alice"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, first.ID, mine[0].ID)
	})

	t.Run("filter by status", func(t *testing.T) {
		_, err := requests.AtomicUpdate(ctx, first.ID, func(r *entity.PurchaseRequest) error {
			r.Status = workflow.StateApproved
			return nil
		})
		require.NoError(t, err)

		pending, err := requests.List(ctx, port.RequestFilter{Status: workflow.StatePending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, second.ID, pending[0].ID)
	})
}

func TestRequestRepository_AtomicUpdate(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zap.NewNop())
	requests := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	seedUser(t, users, "alice", entity.RoleStaff)
	bob := seedUser(t, users, "bob", entity.RoleApproverL1)

	t.Run("commits status and new approvals", func(t *testing.T) {
		request := newRequest("alice")
		require.NoError(t, requests.Create(ctx, request))

		updated, err := requests.AtomicUpdate(ctx, request.ID, func(r *entity.PurchaseRequest) error {
			r.Status = workflow.StateApproved
			r.UpdatedAt = time.Now().UTC()
			r.Approvals = append(r.Approvals, &entity.Approval{
				RequestID:  r.ID,
				ApproverID: bob.ID,
				Approved:   true,
				Comments:   "fine",
				ApprovedAt: time.Now().UTC(),
			})
			return nil
		})
		require.NoError(t, err)

		assert.Equal(t, workflow.StateApproved, updated.Status)
		assert.EqualValues(t, 2, updated.Version)
		require.Len(t, updated.Approvals, 1)
		assert.Equal(t, bob.ID, updated.Approvals[0].ApproverID)
		require.NotNil(t, updated.Approvals[0].Approver)
		assert.Equal(t, "bob", updated.Approvals[0].Approver.Username)
	})

	t.Run("mutation error aborts without writing", func(t *testing.T) {
		request := newRequest("alice2-owner")
		request.ID = "req-abort"
		request.CreatedBy = "alice"
		require.NoError(t, requests.Create(ctx, request))

		boom := errors.New("boom")
		_, err := requests.AtomicUpdate(ctx, request.ID, func(r *entity.PurchaseRequest) error {
			r.Status = workflow.StateRejected
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := requests.GetByID(ctx, request.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StatePending, got.Status)
		assert.EqualValues(t, 1, got.Version)
	})

	t.Run("duplicate approver conflicts", func(t *testing.T) {
		request := newRequest("alice")
		request.ID = "req-dup-approver"
		require.NoError(t, requests.Create(ctx, request))

		decide := func() error {
			_, err := requests.AtomicUpdate(ctx, request.ID, func(r *entity.PurchaseRequest) error {
				r.Approvals = append(r.Approvals, &entity.Approval{
					RequestID:  r.ID,
					ApproverID: bob.ID,
					Approved:   true,
					ApprovedAt: time.Now().UTC(),
				})
				return nil
			})
			return err
		}

		require.NoError(t, decide())
		assert.ErrorIs(t, decide(), entity.ErrConflict)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := requests.AtomicUpdate(ctx, "missing", func(r *entity.PurchaseRequest) error {
			return nil
		})
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})
}

// Two writers race on separate connections. The loser must serialize behind
// the winner's write lock, re-read the finalized state and come back with a
// conflict, never a raw lock error.
func TestRequestRepository_AtomicUpdate_Concurrent(t *testing.T) {
	db := openTestDB(t, 4)
	users := NewUserRepository(db, zap.NewNop())
	requests := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	seedUser(t, users, "alice", entity.RoleStaff)
	bob := seedUser(t, users, "bob", entity.RoleApproverL1)
	dave := seedUser(t, users, "dave", entity.RoleApproverL2)

	request := newRequest("alice")
	require.NoError(t, requests.Create(ctx, request))

	decide := func(approver *entity.User) error {
		_, err := requests.AtomicUpdate(ctx, request.ID, func(r *entity.PurchaseRequest) error {
			if r.Finalized() {
				return fmt.Errorf("%w: request already %s", entity.ErrConflict, r.Status)
			}
			r.Status = workflow.StateApproved
			r.UpdatedAt = time.Now().UTC()
			r.Approvals = append(r.Approvals, &entity.Approval{
				RequestID:  r.ID,
				ApproverID: approver.ID,
				Approved:   true,
				Comments:   "looks good",
				ApprovedAt: time.Now().UTC(),
			})
			return nil
		})
		return err
	}

	start := make(chan struct{})
	results := make(chan error, 2)
	for _, approver := range []*entity.User{bob, dave} {
		approver := approver
		go func() {
			<-start
			results <- decide(approver)
		}()
	}
	close(start)

	var committed, conflicted int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			committed++
		case errors.Is(err, entity.ErrConflict):
			conflicted++
		default:
			t.Fatalf("loser got a non-conflict error: %v", err)
		}
	}
	assert.Equal(t, 1, committed, "exactly one decision commits")
	assert.Equal(t, 1, conflicted, "the other observes a conflict")

	got, err := requests.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, got.Status)
	assert.Len(t, got.Approvals, 1)
	assert.EqualValues(t, 2, got.Version)
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db, zap.NewNop())
	ctx := context.Background()

	alice := seedUser(t, users, "alice", entity.RoleStaff)

	t.Run("get by id", func(t *testing.T) {
		got, err := users.GetByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.Username, got.Username)
		assert.Equal(t, entity.RoleStaff, got.Role)
	})

	t.Run("get by username", func(t *testing.T) {
		got, err := users.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := users.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		dup := &entity.User{ID: "alice2", Username: "alice", Role: entity.RoleStaff, CreatedAt: time.Now().UTC()}
		assert.ErrorIs(t, users.Create(ctx, dup), entity.ErrConflict)
	})
}
