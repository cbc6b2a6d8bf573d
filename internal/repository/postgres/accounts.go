package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/domain"
	"github.com/ls1intum/Artemis-Benchmarking-sub001/internal/repository"
)

// CreateAccount stores an Artemis account.
func (r *Repository) CreateAccount(ctx context.Context, a *domain.ArtemisAccount) error {
	const query = `INSERT INTO artemis_accounts (id, server, account_index, username, password, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, query, a.ID, a.Server, a.AccountIndex, a.Username, a.Password, a.IsAdmin, a.CreatedAt)
	return err
}

// ListAccountsByIndexes returns the accounts of a server whose index falls
// into the resolved user range, ordered by index.
func (r *Repository) ListAccountsByIndexes(ctx context.Context, server string, indexes []int) ([]domain.ArtemisAccount, error) {
	const query = `SELECT id, server, account_index, username, password, is_admin, created_at
		FROM artemis_accounts
		WHERE server = $1 AND is_admin = FALSE AND account_index = ANY($2)
		ORDER BY account_index ASC`
	rows, err := r.pool.Query(ctx, query, server, indexes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.ArtemisAccount
	for rows.Next() {
		var a domain.ArtemisAccount
		if err := rows.Scan(&a.ID, &a.Server, &a.AccountIndex, &a.Username, &a.Password, &a.IsAdmin, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetAdminAccount returns the admin account stored for a server.
func (r *Repository) GetAdminAccount(ctx context.Context, server string) (*domain.ArtemisAccount, error) {
	const query = `SELECT id, server, account_index, username, password, is_admin, created_at
		FROM artemis_accounts WHERE server = $1 AND is_admin = TRUE LIMIT 1`
	row := r.pool.QueryRow(ctx, query, server)
	var a domain.ArtemisAccount
	err := row.Scan(&a.ID, &a.Server, &a.AccountIndex, &a.Username, &a.Password, &a.IsAdmin, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// DeleteAccount removes a stored account.
func (r *Repository) DeleteAccount(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM artemis_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
