package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEventAlreadyExists = errors.New("event already exists for payment and type")
)

type EventFilter struct {
	ProjectID uint64
	SessionID string
	Type      string
	Limit     int32
	Offset    int32
}

const eventColumns = `
	id, uuid, project_id, type, session_id, payment_id, token_id,
	metadata_json, occurred_at, created_at
`

type EventRepository struct {
	db DBTX
}

func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *entity.Event) error {
	return insertEvent(ctx, r.db, event)
}

func (r *EventRepository) FindByID(ctx context.Context, id uint64) (*entity.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`

	event := &entity.Event{}
	if err := scanEvent(r.db.QueryRowContext(ctx, query, id), event); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return event, nil
}

func (r *EventRepository) FindByPaymentAndType(ctx context.Context, paymentID uint64, eventType string) (*entity.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE payment_id = ? AND type = ? LIMIT 1`

	event := &entity.Event{}
	if err := scanEvent(r.db.QueryRowContext(ctx, query, paymentID, eventType), event); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return event, nil
}

func (r *EventRepository) List(ctx context.Context, filter EventFilter) ([]*entity.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`

	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 5)

	if filter.ProjectID > 0 {
		conditions = append(conditions, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if strings.TrimSpace(filter.SessionID) != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if strings.TrimSpace(filter.Type) != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Type)
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

	events := make([]*entity.Event, 0)
	for rows.Next() {
		item := &entity.Event{}
		if err := scanEvent(rows, item); err != nil {
			return nil, err
		}
		events = append(events, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// insertEvent is shared with PaymentRepository.ApplyTransitionWithEvent so
// the transition and its event land in the same transaction.
func insertEvent(ctx context.Context, db DBTX, event *entity.Event) error {
	metadataJSON, err := serializeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (
			uuid, project_id, type, session_id, payment_id, token_id,
			metadata_json, occurred_at, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := db.ExecContext(ctx, query,
		event.UUID,
		event.ProjectID,
		event.Type,
		event.SessionID,
		nullableUint64Value(event.PaymentID),
		nullableUint64Value(event.TokenID),
		metadataJSON,
		event.OccurredAt,
		event.CreatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrEventAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

func scanEvent(scan rowScanner, event *entity.Event) error {
	var paymentID sql.NullInt64
	var tokenID sql.NullInt64
	var metadataJSON sql.NullString

	err := scan.Scan(
		&event.ID,
		&event.UUID,
		&event.ProjectID,
		&event.Type,
		&event.SessionID,
		&paymentID,
		&tokenID,
		&metadataJSON,
		&event.OccurredAt,
		&event.CreatedAt,
	)
	if err != nil {
		return err
	}

	event.PaymentID = uint64PtrFromNull(paymentID)
	event.TokenID = uint64PtrFromNull(tokenID)

	metadata, err := parseMetadata(metadataJSON.String)
	if err != nil {
		return err
	}
	event.Metadata = metadata

	return nil
}
