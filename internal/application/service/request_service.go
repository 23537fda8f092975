package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/authz"
	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// CreateRequestInput carries the fields for a new purchase request
type CreateRequestInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	Proforma    *port.DocumentFile
}

// RequestService is the lifecycle engine: it owns every mutation of a
// purchase request. Methods that run a best-effort enrichment return the
// committed request together with an entity.ErrAdapter error when the
// enrichment failed; callers surface that as a warning, not a rollback.
type RequestService interface {
	Create(ctx context.Context, actor *entity.User, in CreateRequestInput) (*entity.PurchaseRequest, error)
	Decide(ctx context.Context, requestID string, actor *entity.User, approved bool, comments string) (*entity.PurchaseRequest, error)
	SubmitReceipt(ctx context.Context, requestID string, actor *entity.User, file port.DocumentFile) (*entity.PurchaseRequest, error)
	RevalidateReceipt(ctx context.Context, requestID string, actor *entity.User) (*entity.PurchaseRequest, error)
	ReextractProforma(ctx context.Context, requestID string, actor *entity.User) (*entity.PurchaseRequest, error)
}

type requestServiceImpl struct {
	requestRepo    port.RequestRepository
	storage        port.FileStorage
	docIntel       port.DocumentIntelligence
	poService      POService
	notifier       port.Notifier
	adapterTimeout time.Duration
	logger         Logger
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo port.RequestRepository,
	storage port.FileStorage,
	docIntel port.DocumentIntelligence,
	poService POService,
	notifier port.Notifier,
	adapterTimeout time.Duration,
	logger Logger,
) RequestService {
	return &requestServiceImpl{
		requestRepo:    requestRepo,
		storage:        storage,
		docIntel:       docIntel,
		poService:      poService,
		notifier:       notifier,
		adapterTimeout: adapterTimeout,
		logger:         logger,
	}
}

// Create validates the input, persists the request in pending state and runs
// proforma extraction best-effort. Extraction trouble never blocks creation.
func (s *requestServiceImpl) Create(ctx context.Context, actor *entity.User, in CreateRequestInput) (*entity.PurchaseRequest, error) {
	if err := authz.Check(actor, nil, authz.ActionCreate); err != nil {
		return nil, err
	}
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request := &entity.PurchaseRequest{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Status:      workflow.StatePending,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Approvals:   []*entity.Approval{},
	}

	if in.Proforma != nil {
		key := documentKey("proformas", request.ID, in.Proforma.Name)
		if err := s.storage.Save(ctx, key, in.Proforma.Content); err != nil {
			s.logger.Error("Failed to store proforma", "request_id", request.ID, "error", err)
			return nil, fmt.Errorf("store proforma: %w", err)
		}
		request.Proforma = key
	}

	if err := s.requestRepo.Create(ctx, request); err != nil {
		s.logger.Error("Failed to create request", "error", err)
		return nil, err
	}
	s.logger.Info("Request created",
		"request_id", request.ID,
		"created_by", actor.ID,
		"amount", request.Amount.String())

	if in.Proforma == nil {
		return request, nil
	}

	updated, err := s.extractAndStore(ctx, request.ID, *in.Proforma)
	if err != nil {
		// The request is durable; extraction can be retried by the caller.
		s.logger.Warn("Proforma extraction failed", "request_id", request.ID, "error", err)
		return request, fmt.Errorf("%w: proforma extraction: %v", entity.ErrAdapter, err)
	}
	return updated, nil
}

// Decide records an approval or rejection. Preconditions are checked in
// order inside the store's per-id critical section, so of two concurrent
// calls exactly one commits and the loser observes the finalized state.
func (s *requestServiceImpl) Decide(ctx context.Context, requestID string, actor *entity.User, approved bool, comments string) (*entity.PurchaseRequest, error) {
	updated, err := s.requestRepo.AtomicUpdate(ctx, requestID, func(request *entity.PurchaseRequest) error {
		if err := authz.Check(actor, request, authz.ActionDecide); err != nil {
			return err
		}
		if !approved && strings.TrimSpace(comments) == "" {
			return fmt.Errorf("%w: comments are required when rejecting", entity.ErrValidation)
		}

		machine := workflow.NewRequestMachine(request.Status)
		trigger := workflow.TriggerApprove
		if !approved {
			trigger = workflow.TriggerReject
		}
		if err := machine.Fire(ctx, trigger); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrConflict, err)
		}

		now := time.Now().UTC()
		request.Status = machine.State()
		request.UpdatedAt = now
		request.Approvals = append(request.Approvals, &entity.Approval{
			RequestID:  request.ID,
			ApproverID: actor.ID,
			Approver:   actor,
			Approved:   approved,
			Comments:   strings.TrimSpace(comments),
			ApprovedAt: now,
		})
		if !approved {
			request.RejectionReason = strings.TrimSpace(comments)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Decision recorded",
		"request_id", requestID,
		"approver_id", actor.ID,
		"approved", approved,
		"status", updated.Status.String())

	if updated.Status == workflow.StateApproved && s.poService != nil {
		if withPO, poErr := s.poService.Generate(ctx, updated); poErr != nil {
			s.logger.Warn("Purchase order generation failed", "request_id", requestID, "error", poErr)
		} else {
			updated = withPO
		}
	}

	s.notifyDecision(ctx, updated)

	return updated, nil
}

// SubmitReceipt durably stores the receipt and runs validation best-effort.
// The receipt sticks even when validation could not run; RevalidateReceipt
// is the retry path.
func (s *requestServiceImpl) SubmitReceipt(ctx context.Context, requestID string, actor *entity.User, file port.DocumentFile) (*entity.PurchaseRequest, error) {
	current, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := authz.Check(actor, current, authz.ActionSubmitReceipt); err != nil {
		return nil, err
	}

	key := documentKey("receipts", requestID, file.Name)
	if err := s.storage.Save(ctx, key, file.Content); err != nil {
		s.logger.Error("Failed to store receipt", "request_id", requestID, "error", err)
		return nil, fmt.Errorf("store receipt: %w", err)
	}

	// Preconditions re-checked inside the critical section: a concurrent
	// submission may have won since the read above.
	updated, err := s.requestRepo.AtomicUpdate(ctx, requestID, func(request *entity.PurchaseRequest) error {
		if err := authz.Check(actor, request, authz.ActionSubmitReceipt); err != nil {
			return err
		}
		request.Receipt = key
		request.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Receipt submitted", "request_id", requestID, "key", key)

	validated, err := s.validateAndStore(ctx, requestID, file, updated.Amount, updated.ProformaData)
	if err != nil {
		s.logger.Warn("Receipt validation failed", "request_id", requestID, "error", err)
		return updated, fmt.Errorf("%w: receipt validation: %v", entity.ErrAdapter, err)
	}
	return validated, nil
}

// RevalidateReceipt re-runs validation against the stored receipt file
func (s *requestServiceImpl) RevalidateReceipt(ctx context.Context, requestID string, actor *entity.User) (*entity.PurchaseRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.ID != request.CreatedBy && actor.Role != entity.RoleFinance {
		return nil, fmt.Errorf("%w: only the requester or finance can revalidate", entity.ErrAuthorization)
	}
	if request.Receipt == "" {
		return nil, fmt.Errorf("%w: no receipt submitted", entity.ErrConflict)
	}

	content, err := s.storage.Read(ctx, request.Receipt)
	if err != nil {
		return nil, fmt.Errorf("read receipt: %w", err)
	}

	file := port.DocumentFile{Name: filepath.Base(request.Receipt), Content: content}
	validated, err := s.validateAndStore(ctx, requestID, file, request.Amount, request.ProformaData)
	if err != nil {
		return request, fmt.Errorf("%w: receipt validation: %v", entity.ErrAdapter, err)
	}
	return validated, nil
}

// ReextractProforma re-runs extraction against the stored proforma file
func (s *requestServiceImpl) ReextractProforma(ctx context.Context, requestID string, actor *entity.User) (*entity.PurchaseRequest, error) {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if actor.ID != request.CreatedBy && actor.Role != entity.RoleFinance {
		return nil, fmt.Errorf("%w: only the requester or finance can re-extract", entity.ErrAuthorization)
	}
	if request.Proforma == "" {
		return nil, fmt.Errorf("%w: no proforma uploaded", entity.ErrConflict)
	}

	content, err := s.storage.Read(ctx, request.Proforma)
	if err != nil {
		return nil, fmt.Errorf("read proforma: %w", err)
	}

	file := port.DocumentFile{Name: filepath.Base(request.Proforma), Content: content}
	extracted, err := s.extractAndStore(ctx, requestID, file)
	if err != nil {
		return request, fmt.Errorf("%w: proforma extraction: %v", entity.ErrAdapter, err)
	}
	return extracted, nil
}

// extractAndStore runs the adapter under its timeout and commits the result
func (s *requestServiceImpl) extractAndStore(ctx context.Context, requestID string, file port.DocumentFile) (*entity.PurchaseRequest, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	data, err := s.docIntel.ExtractProforma(callCtx, file)
	if err != nil {
		return nil, err
	}

	return s.requestRepo.AtomicUpdate(ctx, requestID, func(request *entity.PurchaseRequest) error {
		request.ProformaData = data
		request.UpdatedAt = time.Now().UTC()
		return nil
	})
}

// validateAndStore runs receipt validation under its timeout and commits the result
func (s *requestServiceImpl) validateAndStore(ctx context.Context, requestID string, file port.DocumentFile, expected decimal.Decimal, reference *entity.ProformaData) (*entity.PurchaseRequest, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	receiptData, validation, err := s.docIntel.ValidateReceipt(callCtx, file, expected, reference)
	if err != nil {
		return nil, err
	}

	return s.requestRepo.AtomicUpdate(ctx, requestID, func(request *entity.PurchaseRequest) error {
		request.ReceiptData = receiptData
		request.ReceiptValidation = validation
		request.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (s *requestServiceImpl) notifyDecision(ctx context.Context, request *entity.PurchaseRequest) {
	if s.notifier == nil || request.Creator == nil || len(request.Approvals) == 0 {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, s.adapterTimeout)
	defer cancel()

	latest := request.Approvals[len(request.Approvals)-1]
	if err := s.notifier.NotifyDecision(notifyCtx, request, request.Creator, latest); err != nil {
		s.logger.Warn("Decision notification failed", "request_id", request.ID, "error", err)
	}
}

func validateCreateInput(in CreateRequestInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", entity.ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description is required", entity.ErrValidation)
	}
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", entity.ErrValidation)
	}
	return nil
}

func documentKey(category, requestID, filename string) string {
	name := filepath.Base(filename)
	if name == "" || name == "." {
		name = "document"
	}
	return fmt.Sprintf("%s/%s/%s", category, requestID, name)
}
