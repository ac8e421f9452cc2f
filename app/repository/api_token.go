package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/stablepay-io/ms-go-notify/app/entity"
)

var ErrTokenNotFound = errors.New("api token not found")

// ApiTokenRepository is read-only: tokens are issued and revoked by the auth
// surface, this service only checks whether a payment's token is still valid.
type ApiTokenRepository struct {
	db DBTX
}

func NewApiTokenRepository(db DBTX) *ApiTokenRepository {
	return &ApiTokenRepository{db: db}
}

func (r *ApiTokenRepository) FindByID(ctx context.Context, id uint64) (*entity.ApiToken, error) {
	query := `
		SELECT id, project_id, environment, status, request_count, last_used_at, created_at
		FROM api_tokens
		WHERE id = ?
	`

	token := &entity.ApiToken{}
	var lastUsedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&token.ID,
		&token.ProjectID,
		&token.Environment,
		&token.Status,
		&token.RequestCount,
		&lastUsedAt,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	token.LastUsedAt = timePtrFromNull(lastUsedAt)

	return token, nil
}
