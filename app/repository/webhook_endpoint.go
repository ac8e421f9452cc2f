package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

var ErrEndpointNotFound = errors.New("webhook endpoint not found")

const endpointColumns = `
	id, project_id, url, secret, status, event_types, last_time_hit,
	created_at, updated_at
`

type WebhookEndpointRepository struct {
	db DBTX
}

func NewWebhookEndpointRepository(db DBTX) *WebhookEndpointRepository {
	return &WebhookEndpointRepository{db: db}
}

func (r *WebhookEndpointRepository) Create(ctx context.Context, endpoint *entity.WebhookEndpoint) error {
	eventTypesJSON, err := serializeStringSlice(endpoint.EventTypes)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_endpoints (
			project_id, url, secret, status, event_types, last_time_hit,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		endpoint.ProjectID,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Status,
		eventTypesJSON,
		nullableTimeValue(endpoint.LastTimeHit),
		endpoint.CreatedAt,
		endpoint.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	endpoint.ID = uint64(id)

	return nil
}

func (r *WebhookEndpointRepository) Update(ctx context.Context, endpoint *entity.WebhookEndpoint) error {
	eventTypesJSON, err := serializeStringSlice(endpoint.EventTypes)
	if err != nil {
		return err
	}

	query := `
		UPDATE webhook_endpoints SET
			url = ?,
			status = ?,
			event_types = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		endpoint.URL,
		endpoint.Status,
		eventTypesJSON,
		endpoint.UpdatedAt,
		endpoint.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrEndpointNotFound
	}

	return nil
}

// TouchLastTimeHit records a successful delivery without racing the owner's
// url/status mutations.
func (r *WebhookEndpointRepository) TouchLastTimeHit(ctx context.Context, id uint64, hitAt time.Time) error {
	query := `UPDATE webhook_endpoints SET last_time_hit = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, hitAt, id)
	return err
}

func (r *WebhookEndpointRepository) FindByID(ctx context.Context, id uint64) (*entity.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = ?`

	endpoint := &entity.WebhookEndpoint{}
	if err := scanEndpoint(r.db.QueryRowContext(ctx, query, id), endpoint); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return endpoint, nil
}

// ListActiveByProjectAndType resolves the delivery fan-out set: ACTIVE
// endpoints of the project subscribed to the event type.
func (r *WebhookEndpointRepository) ListActiveByProjectAndType(ctx context.Context, projectID uint64, eventType string) ([]*entity.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + `
		FROM webhook_endpoints
		WHERE project_id = ?
		  AND status = ?
		  AND JSON_CONTAINS(event_types, JSON_QUOTE(?))
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, entity.EndpointStatusActive, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEndpoints(rows)
}

func (r *WebhookEndpointRepository) ListByProject(ctx context.Context, projectID uint64, limit, offset int32) ([]*entity.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + `
		FROM webhook_endpoints
		WHERE project_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEndpoints(rows)
}

func collectEndpoints(rows *sql.Rows) ([]*entity.WebhookEndpoint, error) {
	endpoints := make([]*entity.WebhookEndpoint, 0)
	for rows.Next() {
		item := &entity.WebhookEndpoint{}
		if err := scanEndpoint(rows, item); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return endpoints, nil
}

func scanEndpoint(scan rowScanner, endpoint *entity.WebhookEndpoint) error {
	var eventTypesJSON string
	var lastTimeHit sql.NullTime

	err := scan.Scan(
		&endpoint.ID,
		&endpoint.ProjectID,
		&endpoint.URL,
		&endpoint.Secret,
		&endpoint.Status,
		&eventTypesJSON,
		&lastTimeHit,
		&endpoint.CreatedAt,
		&endpoint.UpdatedAt,
	)
	if err != nil {
		return err
	}

	endpoint.LastTimeHit = timePtrFromNull(lastTimeHit)

	eventTypes, err := parseStringSlice(eventTypesJSON)
	if err != nil {
		return err
	}
	endpoint.EventTypes = eventTypes

	return nil
}
