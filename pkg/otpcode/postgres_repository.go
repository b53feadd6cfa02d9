package otpcode

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCodeRepository implements CodeRepository using PostgreSQL
type PostgresCodeRepository struct {
	db *pgxpool.Pool
}

// NewPostgresCodeRepository creates a new PostgreSQL-based code repository
func NewPostgresCodeRepository(db *pgxpool.Pool) *PostgresCodeRepository {
	return &PostgresCodeRepository{db: db}
}

func (r *PostgresCodeRepository) CreateCode(ctx context.Context, params CreateCodeParams) (Code, error) {
	query := `
		INSERT INTO one_time_codes (account_id, code, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, account_id, code, created_at, expires_at, consumed_at
	`

	var c Code
	err := r.db.QueryRow(ctx, query, params.AccountID, params.Code, params.CreatedAt, params.ExpiresAt).Scan(
		&c.ID,
		&c.AccountID,
		&c.Code,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.ConsumedAt,
	)
	if err != nil {
		return Code{}, err
	}
	return c, nil
}

func (r *PostgresCodeRepository) GetLatestCode(ctx context.Context, accountID uuid.UUID) (Code, error) {
	query := `
		SELECT id, account_id, code, created_at, expires_at, consumed_at
		FROM one_time_codes
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var c Code
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&c.ID,
		&c.AccountID,
		&c.Code,
		&c.CreatedAt,
		&c.ExpiresAt,
		&c.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrCodeNotFound
		}
		return Code{}, err
	}
	return c, nil
}

func (r *PostgresCodeRepository) ConsumeCode(ctx context.Context, codeID uuid.UUID, consumedAt time.Time) error {
	query := `
		UPDATE one_time_codes
		SET consumed_at = $2
		WHERE id = $1
		AND consumed_at IS NULL
	`

	_, err := r.db.Exec(ctx, query, codeID, consumedAt)
	return err
}

func (r *PostgresCodeRepository) InvalidateCodes(ctx context.Context, accountID uuid.UUID, consumedAt time.Time) error {
	query := `
		UPDATE one_time_codes
		SET consumed_at = $2
		WHERE account_id = $1
		AND consumed_at IS NULL
	`

	_, err := r.db.Exec(ctx, query, accountID, consumedAt)
	return err
}

func (r *PostgresCodeRepository) MarkSessionVerified(ctx context.Context, accountID uuid.UUID, sessionID string, verifiedAt time.Time) error {
	query := `
		INSERT INTO email_mfa_sessions (account_id, session_id, verified_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, session_id) DO UPDATE SET verified_at = EXCLUDED.verified_at
	`

	_, err := r.db.Exec(ctx, query, accountID, sessionID, verifiedAt)
	return err
}

func (r *PostgresCodeRepository) IsSessionVerified(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM email_mfa_sessions
			WHERE account_id = $1 AND session_id = $2
		)
	`

	var verified bool
	err := r.db.QueryRow(ctx, query, accountID, sessionID).Scan(&verified)
	if err != nil {
		return false, err
	}
	return verified, nil
}
