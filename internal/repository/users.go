package repository

import (
	"context"
	"fmt"

	"github.com/bsocio/campaign-service/internal/audience"
	"github.com/bsocio/campaign-service/internal/model"
	"github.com/jmoiron/sqlx"
)

// UsersRepository reads the recipient projection. The dispatch loop only ever
// pages it forward by ascending id; OFFSET is deliberately absent.
type UsersRepository interface {
	// PageAfter returns up to limit users matching f with id strictly greater
	// than cursor (0 = start of set), ordered by id ascending.
	PageAfter(ctx context.Context, f audience.Filter, cursor int64, limit int) ([]model.User, error)
	// Count returns the number of users matching f (audience preview).
	Count(ctx context.Context, f audience.Filter) (int64, error)
}

type UsersRepositoryImpl struct {
	db *sqlx.DB
}

func NewUsersRepository(db *sqlx.DB) *UsersRepositoryImpl {
	return &UsersRepositoryImpl{db: db}
}

var _ UsersRepository = (*UsersRepositoryImpl)(nil)

const userColumns = `id, email, role, oauth_provider, is_phone_verified, gender, created_at`

func (r *UsersRepositoryImpl) PageAfter(ctx context.Context, f audience.Filter, cursor int64, limit int) ([]model.User, error) {
	q, args := pageQuery(f, cursor, limit)
	rows := []model.User{}
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *UsersRepositoryImpl) Count(ctx context.Context, f audience.Filter) (int64, error) {
	q := `SELECT COUNT(*) FROM users`
	clause, args := f.WhereClause(1)
	if clause != "" {
		q += " WHERE " + clause
	}
	var n int64
	if err := r.db.GetContext(ctx, &n, q, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// pageQuery builds the cursor-seek page statement. Kept as a pure function so
// the SQL shape is testable without a database.
func pageQuery(f audience.Filter, cursor int64, limit int) (string, []any) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id > $1`
	args := []any{cursor}

	clause, fargs := f.WhereClause(2)
	if clause != "" {
		q += " AND " + clause
		args = append(args, fargs...)
	}

	q += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", len(args)+1)
	args = append(args, limit)
	return q, args
}
