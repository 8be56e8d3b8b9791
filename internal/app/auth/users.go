package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRecord struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Users is the account table behind the identity provider.
type Users interface {
	Insert(ctx context.Context, u UserRecord) error
	FindByEmail(ctx context.Context, email string) (UserRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (UserRecord, error)
}

type PostgresUsers struct {
	db *pgxpool.Pool
}

func NewPostgresUsers(db *pgxpool.Pool) *PostgresUsers {
	return &PostgresUsers{db: db}
}

func (p *PostgresUsers) Insert(ctx context.Context, u UserRecord) error {
	_, err := p.db.Exec(ctx, `
INSERT INTO users (id, email, password_hash)
VALUES ($1, $2, $3)
`, u.ID, u.Email, u.PasswordHash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailInUse
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresUsers) FindByEmail(ctx context.Context, email string) (UserRecord, error) {
	return p.findOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email)
}

func (p *PostgresUsers) FindByID(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	return p.findOne(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (p *PostgresUsers) findOne(ctx context.Context, sql string, arg any) (UserRecord, error) {
	var u UserRecord
	err := p.db.QueryRow(ctx, sql, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// MemoryUsers backs tests and infrastructure-free dev runs.
type MemoryUsers struct {
	mu      sync.RWMutex
	byEmail map[string]UserRecord
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byEmail: make(map[string]UserRecord)}
}

func (m *MemoryUsers) Insert(_ context.Context, u UserRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := m.byEmail[key]; ok {
		return ErrEmailInUse
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.byEmail[key] = u
	return nil
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryUsers) FindByID(_ context.Context, id uuid.UUID) (UserRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return UserRecord{}, ErrUserNotFound
}
