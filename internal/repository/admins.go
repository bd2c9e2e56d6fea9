package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bsocio/campaign-service/internal/model"
	"github.com/jmoiron/sqlx"
)

type AdminsRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.Admin, error)
}

type AdminsRepositoryImpl struct {
	db *sqlx.DB
}

func NewAdminsRepository(db *sqlx.DB) *AdminsRepositoryImpl {
	return &AdminsRepositoryImpl{db: db}
}

var _ AdminsRepository = (*AdminsRepositoryImpl)(nil)

func (r *AdminsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.Admin, error) {
	var a model.Admin
	err := r.db.GetContext(ctx, &a, `
		SELECT id, name, api_key, status, rate_limit_rps, created_at, updated_at
		  FROM admins
		 WHERE api_key = $1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
