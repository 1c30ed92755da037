package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/socialblog/auth-service/internal/auth/domain"
	autherror "github.com/socialblog/auth-service/internal/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DBPool is the subset of *pgxpool.Pool the repository needs.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	db DBPool
}

func NewPostgresRepository(db DBPool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectAccount = `
	SELECT u.id, u.username, u.email, u.password_hash, u.full_name,
	       u.role_id, COALESCE(r.name, 'user'),
	       u.locked_at, u.locked_until, u.lock_reason, u.locked_by,
	       u.last_login_ip, u.last_login_at, u.created_at, u.updated_at
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id
`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.FullName,
		&a.RoleID, &a.RoleName,
		&a.LockedAt, &a.LockedUntil, &a.LockReason, &a.LockedBy,
		&a.LastLoginIP, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, selectAccount+`WHERE LOWER(u.email) = LOWER($1) LIMIT 1`, email)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, selectAccount+`WHERE u.username = $1 LIMIT 1`, username)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, selectAccount+`WHERE u.id = $1`, id)
	account, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return account, nil
}

// Create inserts the account and fills in its generated id and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, account *domain.Account) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, role_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, account.Username, account.Email, account.PasswordHash, account.FullName, account.RoleID).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "username") {
				return autherror.ErrUsernameTaken
			}
			return autherror.ErrEmailAlreadyInUse
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateAccount(ctx context.Context, id int64, update domain.AccountUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.FullName != nil {
		add("full_name", *update.FullName)
	}
	if update.LastLoginIP != nil {
		add("last_login_ip", *update.LastLoginIP)
	}
	if update.LastLoginAt != nil {
		add("last_login_at", *update.LastLoginAt)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + `, updated_at = now() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Lock(ctx context.Context, id int64, lock domain.AccountLock) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET locked_at = $2, locked_until = $3, lock_reason = $4, locked_by = $5, updated_at = now()
		WHERE id = $1
	`, id, lock.LockedAt, lock.LockedUntil, lock.Reason, lock.LockedBy)
	if err != nil {
		return false, fmt.Errorf("failed to lock user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) Unlock(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET locked_at = NULL, locked_until = NULL, lock_reason = NULL, locked_by = NULL, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to unlock user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *domain.PendingLoginChallenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO two_fa_requests (id, user_id, code, token, ip_address, device_fingerprint, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.UserID, c.Code, c.Token, c.IPAddress, c.DeviceFingerprint, c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store login challenge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetChallengeByToken(ctx context.Context, token string) (*domain.PendingLoginChallenge, error) {
	var c domain.PendingLoginChallenge
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, code, token, ip_address, device_fingerprint, expires_at, created_at
		FROM two_fa_requests
		WHERE token = $1
	`, token).Scan(&c.ID, &c.UserID, &c.Code, &c.Token, &c.IPAddress, &c.DeviceFingerprint, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get login challenge: %w", err)
	}
	return &c, nil
}

// DeleteChallenge is the single point where a challenge is consumed; only one
// caller can observe true for a given id.
func (r *PostgresRepository) DeleteChallenge(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM two_fa_requests WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete login challenge: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) StoreRefreshToken(ctx context.Context, rt *domain.RefreshToken) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, rt.UserID, rt.Token, rt.ExpiresAt).Scan(&rt.ID, &rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`, token).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	return &rt, nil
}

func (r *PostgresRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) RecordAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO auth_audit_log (id, user_id, email, action, ip_address, masked_ip, user_agent, status, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.UserID, e.Email, e.Action, e.IPAddress, e.MaskedIP, e.UserAgent, e.Status, e.Details, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// QueryAuditEntries returns the newest entries first.
func (r *PostgresRepository) QueryAuditEntries(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	var conds []string
	var args []any
	where := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != nil {
		where("user_id = $%d", *filter.UserID)
	}
	if filter.IP != "" {
		where("ip_address = $%d", filter.IP)
	}
	if filter.Action != "" {
		where("action = $%d", filter.Action)
	}

	query := `SELECT id, user_id, email, action, ip_address, masked_ip, user_agent, status, details, created_at FROM auth_audit_log`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.AuditEntry, error) {
		var e domain.AuditEntry
		err := row.Scan(&e.ID, &e.UserID, &e.Email, &e.Action, &e.IPAddress, &e.MaskedIP, &e.UserAgent, &e.Status, &e.Details, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}
