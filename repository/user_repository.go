package repository

import (
	"context"
	"fmt"

	"betmates/database"
	"betmates/models"

	"github.com/jackc/pgx/v5"
)

// UserRepository implements the participant directory
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

// GetByID retrieves a user by their stable participant ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, username, display_name, created_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}

	return &user, nil
}

// GetByUsername resolves a handle to a user. Unknown handles return nil.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, display_name, created_at
		FROM users
		WHERE username = $1
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}

	return &user, nil
}

// Create registers a new user
func (r *UserRepository) Create(ctx context.Context, username, displayName string) (*models.User, error) {
	query := `
		INSERT INTO users (username, display_name)
		VALUES ($1, $2)
		RETURNING id, username, display_name, created_at
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, username, displayName).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.CreatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", username, err)
	}

	return &user, nil
}
