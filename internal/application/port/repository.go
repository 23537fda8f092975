package port

import (
	"context"

	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// RequestFilter narrows List results. Zero value lists everything.
type RequestFilter struct {
	Status    workflow.State
	CreatedBy string
}

// MutationFn receives the current request state inside the store's per-id
// critical section and mutates it in place. Returning an error aborts the
// update without writing.
type MutationFn func(request *entity.PurchaseRequest) error

// RequestRepository is the durable store for purchase requests and their
// approval history.
type RequestRepository interface {
	// Create persists a new request. The approval sequence starts empty.
	Create(ctx context.Context, request *entity.PurchaseRequest) error

	// GetByID loads a request with its approvals and creator preloaded.
	// Returns entity.ErrNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*entity.PurchaseRequest, error)

	// List returns requests in creation order, newest first
	List(ctx context.Context, filter RequestFilter) ([]*entity.PurchaseRequest, error)

	// AtomicUpdate runs fn against the current state and commits the result
	// linearizably per id: concurrent updates to one request serialize, and
	// a writer that lost the race gets entity.ErrConflict rather than a
	// silently discarded write. Unknown ids yield entity.ErrNotFound.
	AtomicUpdate(ctx context.Context, id string, fn MutationFn) (*entity.PurchaseRequest, error)
}

// UserRepository resolves identities supplied by the external auth layer
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
