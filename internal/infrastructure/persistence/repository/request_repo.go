package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dmarkova/procureflow/internal/application/port"
	"github.com/dmarkova/procureflow/internal/domain/entity"
	"github.com/dmarkova/procureflow/internal/infrastructure/persistence/sqlite"
)

// RequestRepository implements port.RequestRepository on sqlite. The
// approval sequence lives in its own table with a UNIQUE(request_id,
// approver_id) constraint backing the one-decision-per-approver invariant,
// and a version column backs the per-id optimistic lock.
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `
	r.id, r.title, r.description, r.amount, r.status, r.created_by,
	r.proforma, r.proforma_data, r.purchase_order, r.purchase_order_data,
	r.receipt, r.receipt_data, r.receipt_validation, r.rejection_reason,
	r.version, r.created_at, r.updated_at,
	u.id, u.username, u.role, u.email, u.open_id, u.created_at`

// Create persists a new request with an empty approval sequence
func (r *RequestRepository) Create(ctx context.Context, request *entity.PurchaseRequest) error {
	proformaData, err := marshalNullable(request.ProformaData)
	if err != nil {
		return fmt.Errorf("marshal proforma data: %w", err)
	}

	query := `
		INSERT INTO purchase_requests (
			id, title, description, amount, status, created_by,
			proforma, proforma_data, rejection_reason,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, query,
		request.ID,
		request.Title,
		request.Description,
		request.Amount.String(),
		request.Status.String(),
		request.CreatedBy,
		request.Proforma,
		proformaData,
		request.RejectionReason,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("id", request.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	request.Version = 1
	return nil
}

// GetByID loads a request with approvals and creator preloaded
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.PurchaseRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM purchase_requests r
		JOIN users u ON u.id = r.created_by
		WHERE r.id = ?
	`

	request, err := scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: request %s", entity.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	if err := r.loadApprovals(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// List returns requests in creation order, newest first
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.PurchaseRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM purchase_requests r
		JOIN users u ON u.id = r.created_by
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND r.status = ?"
		args = append(args, filter.Status.String())
	}
	if filter.CreatedBy != "" {
		query += " AND r.created_by = ?"
		args = append(args, filter.CreatedBy)
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.PurchaseRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, request := range requests {
		if err := r.loadApprovals(ctx, request); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

// AtomicUpdate applies fn to the current state inside an immediate
// transaction and commits guarded by the version column. A concurrent writer
// serializes behind the write lock and re-reads the winner's committed state,
// so fn's own preconditions decide; the version guard and a busy timeout
// expiry both surface as entity.ErrConflict, never as a generic error.
func (r *RequestRepository) AtomicUpdate(ctx context.Context, id string, fn port.MutationFn) (*entity.PurchaseRequest, error) {
	var updated *entity.PurchaseRequest

	err := r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		request, err := r.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		expectedVersion := request.Version
		priorApprovals := len(request.Approvals)

		if err := fn(request); err != nil {
			return err
		}

		if err := r.writeRequest(txCtx, request, expectedVersion); err != nil {
			return err
		}

		for _, approval := range request.Approvals[priorApprovals:] {
			if err := r.insertApproval(txCtx, approval); err != nil {
				return err
			}
		}

		updated, err = r.GetByID(txCtx, id)
		return err
	})
	if err != nil {
		if isBusy(err) {
			return nil, fmt.Errorf("%w: request %s is being modified concurrently", entity.ErrConflict, id)
		}
		return nil, err
	}
	return updated, nil
}

func (r *RequestRepository) writeRequest(ctx context.Context, request *entity.PurchaseRequest, expectedVersion int64) error {
	proformaData, err := marshalNullable(request.ProformaData)
	if err != nil {
		return fmt.Errorf("marshal proforma data: %w", err)
	}
	poData, err := marshalNullable(request.PurchaseOrderData)
	if err != nil {
		return fmt.Errorf("marshal purchase order data: %w", err)
	}
	receiptData, err := marshalNullable(request.ReceiptData)
	if err != nil {
		return fmt.Errorf("marshal receipt data: %w", err)
	}
	receiptValidation, err := marshalNullable(request.ReceiptValidation)
	if err != nil {
		return fmt.Errorf("marshal receipt validation: %w", err)
	}

	query := `
		UPDATE purchase_requests SET
			status = ?, proforma = ?, proforma_data = ?,
			purchase_order = ?, purchase_order_data = ?,
			receipt = ?, receipt_data = ?, receipt_validation = ?,
			rejection_reason = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		request.Status.String(),
		request.Proforma,
		proformaData,
		request.PurchaseOrder,
		poData,
		request.Receipt,
		receiptData,
		receiptValidation,
		request.RejectionReason,
		request.UpdatedAt,
		request.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("id", request.ID), zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: request %s was modified concurrently", entity.ErrConflict, request.ID)
	}

	request.Version = expectedVersion + 1
	return nil
}

func (r *RequestRepository) insertApproval(ctx context.Context, approval *entity.Approval) error {
	query := `
		INSERT INTO approvals (request_id, approver_id, approved, comments, approved_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		approval.RequestID,
		approval.ApproverID,
		approval.Approved,
		approval.Comments,
		approval.ApprovedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: approver %s already acted on request %s",
				entity.ErrConflict, approval.ApproverID, approval.RequestID)
		}
		r.logger.Error("Failed to insert approval",
			zap.String("request_id", approval.RequestID),
			zap.String("approver_id", approval.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to insert approval: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	approval.ID = id
	return nil
}

func (r *RequestRepository) loadApprovals(ctx context.Context, request *entity.PurchaseRequest) error {
	query := `
		SELECT a.id, a.request_id, a.approver_id, a.approved, a.comments, a.approved_at,
			u.id, u.username, u.role, u.email, u.open_id, u.created_at
		FROM approvals a
		JOIN users u ON u.id = a.approver_id
		WHERE a.request_id = ?
		ORDER BY a.id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, request.ID)
	if err != nil {
		r.logger.Error("Failed to load approvals", zap.String("request_id", request.ID), zap.Error(err))
		return fmt.Errorf("failed to load approvals: %w", err)
	}
	defer rows.Close()

	approvals := []*entity.Approval{}
	for rows.Next() {
		var approval entity.Approval
		var approver entity.User
		err := rows.Scan(
			&approval.ID,
			&approval.RequestID,
			&approval.ApproverID,
			&approval.Approved,
			&approval.Comments,
			&approval.ApprovedAt,
			&approver.ID,
			&approver.Username,
			&approver.Role,
			&approver.Email,
			&approver.OpenID,
			&approver.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan approval: %w", err)
		}
		approval.Approver = &approver
		approvals = append(approvals, &approval)
	}

	request.Approvals = approvals
	return rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.PurchaseRequest, error) {
	var request entity.PurchaseRequest
	var creator entity.User
	var amount string
	var proformaData, poData, receiptData, receiptValidation sql.NullString

	err := row.Scan(
		&request.ID,
		&request.Title,
		&request.Description,
		&amount,
		&request.Status,
		&request.CreatedBy,
		&request.Proforma,
		&proformaData,
		&request.PurchaseOrder,
		&poData,
		&request.Receipt,
		&receiptData,
		&receiptValidation,
		&request.RejectionReason,
		&request.Version,
		&request.CreatedAt,
		&request.UpdatedAt,
		&creator.ID,
		&creator.Username,
		&creator.Role,
		&creator.Email,
		&creator.OpenID,
		&creator.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	request.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	request.Creator = &creator

	if err := unmarshalNullable(proformaData, &request.ProformaData); err != nil {
		return nil, fmt.Errorf("unmarshal proforma data: %w", err)
	}
	if err := unmarshalNullable(poData, &request.PurchaseOrderData); err != nil {
		return nil, fmt.Errorf("unmarshal purchase order data: %w", err)
	}
	if err := unmarshalNullable(receiptData, &request.ReceiptData); err != nil {
		return nil, fmt.Errorf("unmarshal receipt data: %w", err)
	}
	if err := unmarshalNullable(receiptValidation, &request.ReceiptValidation); err != nil {
		return nil, fmt.Errorf("unmarshal receipt validation: %w", err)
	}

	return &request, nil
}

// marshalNullable encodes v as JSON, mapping typed-nil pointers to SQL NULL
func marshalNullable(v interface{}) (sql.NullString, error) {
	switch t := v.(type) {
	case *entity.ProformaData:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *entity.PurchaseOrderData:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *entity.ReceiptData:
		if t == nil {
			return sql.NullString{}, nil
		}
	case *entity.ReceiptValidation:
		if t == nil {
			return sql.NullString{}, nil
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalNullable decodes a JSON column into **T, leaving *T nil for NULL
func unmarshalNullable[T any](col sql.NullString, target **T) error {
	if !col.Valid || col.String == "" {
		*target = nil
		return nil
	}
	var value T
	if err := json.Unmarshal([]byte(col.String), &value); err != nil {
		return err
	}
	*target = &value
	return nil
}

func isUniqueViolation(err error) bool {
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// isBusy matches lock contention errors anywhere in the chain, including
// wrapped begin and update failures
func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
