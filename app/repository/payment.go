package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrPaymentStateConflict = errors.New("payment is already in a terminal state")
)

type PaymentFilter struct {
	ProjectID uint64
	SessionID string
	Status    string
	Currency  string
	Limit     int32
	Offset    int32
}

const paymentColumns = `
	id, project_id, token_id, amount_units, currency, recipient_address,
	tx_hash, block_number, status, failure_reason, session_id,
	idempotency_key, metadata_json, monitoring_started_at, confirmed_at,
	created_at, updated_at
`

type PaymentRepository struct {
	db TxDB
}

func NewPaymentRepository(db TxDB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			project_id, token_id, amount_units, currency, recipient_address,
			tx_hash, block_number, status, failure_reason, session_id,
			idempotency_key, metadata_json, monitoring_started_at, confirmed_at,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.ProjectID,
		nullableUint64Value(payment.TokenID),
		payment.AmountUnits,
		payment.Currency,
		payment.RecipientAddress,
		nullableStringValue(payment.TxHash),
		nullableUint64Value(payment.BlockNumber),
		payment.Status,
		nullableStringValue(payment.FailureReason),
		payment.SessionID,
		nullableStringValue(payment.IdempotencyKey),
		metadataJSON,
		payment.MonitoringStartedAt,
		nullableTimeValue(payment.ConfirmedAt),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// ApplyTransitionWithEvent finalizes a payment status transition and records
// its domain event in one transaction. The status update is a compare-and-set
// against PENDING, so a payment already in a terminal state is never
// double-applied; in that case ErrPaymentStateConflict is returned and
// nothing is written.
func (r *PaymentRepository) ApplyTransitionWithEvent(ctx context.Context, payment *entity.Payment, event *entity.Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE payments SET
			tx_hash = ?,
			block_number = ?,
			status = ?,
			failure_reason = ?,
			confirmed_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := tx.ExecContext(ctx, query,
		nullableStringValue(payment.TxHash),
		nullableUint64Value(payment.BlockNumber),
		payment.Status,
		nullableStringValue(payment.FailureReason),
		nullableTimeValue(payment.ConfirmedAt),
		payment.UpdatedAt,
		payment.ID,
		entity.PaymentStatusPending,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentStateConflict
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, key), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByTxHash(ctx context.Context, txHash string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_hash = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, txHash), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.ProjectID > 0 {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if strings.TrimSpace(filter.SessionID) != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if strings.TrimSpace(filter.Currency) != "" {
		conditions = append(conditions, "currency = ?")
		args = append(args, filter.Currency)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPaymentFromRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

// ListMonitoring returns pending payments in monitoring order, oldest first,
// so payments closest to their timeout are evaluated before fresh ones.
func (r *PaymentRepository) ListMonitoring(ctx context.Context, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = ?
		ORDER BY monitoring_started_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.PaymentStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPaymentFromRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var tokenID sql.NullInt64
	var txHash sql.NullString
	var blockNumber sql.NullInt64
	var failureReason sql.NullString
	var idempotencyKey sql.NullString
	var metadataJSON string
	var confirmedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.ProjectID,
		&tokenID,
		&payment.AmountUnits,
		&payment.Currency,
		&payment.RecipientAddress,
		&txHash,
		&blockNumber,
		&payment.Status,
		&failureReason,
		&payment.SessionID,
		&idempotencyKey,
		&metadataJSON,
		&payment.MonitoringStartedAt,
		&confirmedAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.TokenID = uint64PtrFromNull(tokenID)
	payment.TxHash = stringPtrFromNull(txHash)
	payment.BlockNumber = uint64PtrFromNull(blockNumber)
	payment.FailureReason = stringPtrFromNull(failureReason)
	payment.IdempotencyKey = stringPtrFromNull(idempotencyKey)
	payment.ConfirmedAt = timePtrFromNull(confirmedAt)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}

func scanPaymentFromRows(rows *sql.Rows) (*entity.Payment, error) {
	item := &entity.Payment{}
	if err := scanPayment(rows, item); err != nil {
		return nil, err
	}
	return item, nil
}
