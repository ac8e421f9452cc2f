package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

var (
	ErrDeliveryAttemptConflict = errors.New("delivery attempt already exists for pair and attempt number")
	ErrDeliveryNotPending      = errors.New("delivery attempt is not pending")
)

type DeliveryFilter struct {
	EventID    uint64
	EndpointID uint64
	Status     string
	Limit      int32
	Offset     int32
}

// AttemptOutcome finalizes the in-flight attempt row. This is the only
// mutation the ledger permits.
type AttemptOutcome struct {
	Status         string
	HTTPStatusCode *int32
	ErrorMessage   *string
	ResponseBody   *string
	NextAttemptAt  *time.Time
	DeliveredAt    *time.Time
}

const deliveryColumns = `
	id, event_id, endpoint_id, attempt_number, status, http_status_code,
	error_message, response_body, next_attempt_at, created_at, delivered_at
`

type EventDeliveryRepository struct {
	db DBTX
}

func NewEventDeliveryRepository(db DBTX) *EventDeliveryRepository {
	return &EventDeliveryRepository{db: db}
}

// Create appends a new attempt row. The unique key on
// (event_id, endpoint_id, attempt_number) arbitrates between racing
// dispatchers: the loser gets ErrDeliveryAttemptConflict and must not
// attempt the delivery.
func (r *EventDeliveryRepository) Create(ctx context.Context, delivery *entity.EventDelivery) error {
	query := `
		INSERT INTO event_deliveries (
			event_id, endpoint_id, attempt_number, status, http_status_code,
			error_message, response_body, next_attempt_at, created_at, delivered_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		delivery.EventID,
		delivery.EndpointID,
		delivery.AttemptNumber,
		delivery.Status,
		nullableInt32Value(delivery.HTTPStatusCode),
		nullableStringValue(delivery.ErrorMessage),
		nullableStringValue(delivery.ResponseBody),
		nullableTimeValue(delivery.NextAttemptAt),
		delivery.CreatedAt,
		nullableTimeValue(delivery.DeliveredAt),
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrDeliveryAttemptConflict
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	delivery.ID = uint64(id)

	return nil
}

func (r *EventDeliveryRepository) Finalize(ctx context.Context, id uint64, outcome AttemptOutcome) error {
	query := `
		UPDATE event_deliveries SET
			status = ?,
			http_status_code = ?,
			error_message = ?,
			response_body = ?,
			next_attempt_at = ?,
			delivered_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		outcome.Status,
		nullableInt32Value(outcome.HTTPStatusCode),
		nullableStringValue(outcome.ErrorMessage),
		nullableStringValue(outcome.ResponseBody),
		nullableTimeValue(outcome.NextAttemptAt),
		nullableTimeValue(outcome.DeliveredAt),
		id,
		entity.DeliveryStatusPending,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDeliveryNotPending
	}

	return nil
}

func (r *EventDeliveryRepository) FindByID(ctx context.Context, id uint64) (*entity.EventDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM event_deliveries WHERE id = ?`

	delivery := &entity.EventDelivery{}
	if err := scanDelivery(r.db.QueryRowContext(ctx, query, id), delivery); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return delivery, nil
}

// FindLatestForPair returns the highest-numbered attempt for the pair, or nil
// when no attempt exists yet.
func (r *EventDeliveryRepository) FindLatestForPair(ctx context.Context, eventID, endpointID uint64) (*entity.EventDelivery, error) {
	query := `SELECT ` + deliveryColumns + `
		FROM event_deliveries
		WHERE event_id = ? AND endpoint_id = ?
		ORDER BY attempt_number DESC
		LIMIT 1
	`

	delivery := &entity.EventDelivery{}
	if err := scanDelivery(r.db.QueryRowContext(ctx, query, eventID, endpointID), delivery); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return delivery, nil
}

// ListDueRetries returns pairs whose latest attempt is RETRYING and due.
// Restricting to the latest attempt keeps a pair with a PENDING attempt
// in flight out of the result, and the join skips endpoints that are no
// longer ACTIVE without touching their ledger rows.
func (r *EventDeliveryRepository) ListDueRetries(ctx context.Context, now time.Time, limit int32) ([]*entity.EventDelivery, error) {
	query := `
		SELECT d.id, d.event_id, d.endpoint_id, d.attempt_number, d.status,
			d.http_status_code, d.error_message, d.response_body,
			d.next_attempt_at, d.created_at, d.delivered_at
		FROM event_deliveries d
		JOIN webhook_endpoints e ON e.id = d.endpoint_id
		WHERE d.status = ?
		  AND d.next_attempt_at IS NOT NULL
		  AND d.next_attempt_at <= ?
		  AND e.status = ?
		  AND d.attempt_number = (
			SELECT MAX(d2.attempt_number)
			FROM event_deliveries d2
			WHERE d2.event_id = d.event_id AND d2.endpoint_id = d.endpoint_id
		  )
		ORDER BY d.next_attempt_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		entity.DeliveryStatusRetrying,
		now,
		entity.EndpointStatusActive,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// ListStalePending returns attempts stuck in PENDING past the cutoff, i.e.
// attempts whose process died between the insert and the finalize.
func (r *EventDeliveryRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.EventDelivery, error) {
	query := `SELECT ` + deliveryColumns + `
		FROM event_deliveries
		WHERE status = ? AND created_at <= ?
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.DeliveryStatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

// List queries the ledger newest first. A non-positive Limit returns every
// matching row; the per-event ledger view depends on that.
func (r *EventDeliveryRepository) List(ctx context.Context, filter DeliveryFilter) ([]*entity.EventDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM event_deliveries`

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if filter.EventID > 0 {
		conditions = append(conditions, "event_id = ?")
		args = append(args, filter.EventID)
	}
	if filter.EndpointID > 0 {
		conditions = append(conditions, "endpoint_id = ?")
		args = append(args, filter.EndpointID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDeliveries(rows)
}

func collectDeliveries(rows *sql.Rows) ([]*entity.EventDelivery, error) {
	deliveries := make([]*entity.EventDelivery, 0)
	for rows.Next() {
		item := &entity.EventDelivery{}
		if err := scanDelivery(rows, item); err != nil {
			return nil, err
		}
		deliveries = append(deliveries, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}

func scanDelivery(scan rowScanner, delivery *entity.EventDelivery) error {
	var httpStatusCode sql.NullInt32
	var errorMessage sql.NullString
	var responseBody sql.NullString
	var nextAttemptAt sql.NullTime
	var deliveredAt sql.NullTime

	err := scan.Scan(
		&delivery.ID,
		&delivery.EventID,
		&delivery.EndpointID,
		&delivery.AttemptNumber,
		&delivery.Status,
		&httpStatusCode,
		&errorMessage,
		&responseBody,
		&nextAttemptAt,
		&delivery.CreatedAt,
		&deliveredAt,
	)
	if err != nil {
		return err
	}

	delivery.HTTPStatusCode = int32PtrFromNull(httpStatusCode)
	delivery.ErrorMessage = stringPtrFromNull(errorMessage)
	delivery.ResponseBody = stringPtrFromNull(responseBody)
	delivery.NextAttemptAt = timePtrFromNull(nextAttemptAt)
	delivery.DeliveredAt = timePtrFromNull(deliveredAt)

	return nil
}
