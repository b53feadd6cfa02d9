package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAccountRepository implements AccountRepository using PostgreSQL
type PostgresAccountRepository struct {
	db *pgxpool.Pool
}

// NewPostgresAccountRepository creates a new PostgreSQL-based account repository
func NewPostgresAccountRepository(db *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	query := `
		SELECT id, email, role, org_id, COALESCE(mfa_method, ''), created_at, updated_at
		FROM accounts
		WHERE id = $1
		AND deleted_at IS NULL
	`

	var account Account
	err := r.db.QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Email,
		&account.Role,
		&account.OrgID,
		&account.MfaMethod,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	if err := ValidateRole(params.Role); err != nil {
		return Account{}, err
	}

	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO accounts (id, email, role, org_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, role, org_id, COALESCE(mfa_method, ''), created_at, updated_at
	`

	var account Account
	err := r.db.QueryRow(ctx, query, id, params.Email, params.Role, params.OrgID).Scan(
		&account.ID,
		&account.Email,
		&account.Role,
		&account.OrgID,
		&account.MfaMethod,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

func (r *PostgresAccountRepository) SetMfaMethod(ctx context.Context, id uuid.UUID, method string) error {
	if err := ValidateMfaMethod(method); err != nil {
		return err
	}

	query := `
		UPDATE accounts
		SET mfa_method = NULLIF($2, ''),
		    updated_at = NOW() AT TIME ZONE 'UTC'
		WHERE id = $1
		AND deleted_at IS NULL
	`

	tag, err := r.db.Exec(ctx, query, id, method)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
