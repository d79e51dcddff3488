package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/drims/drims-backend/pkg/database"
	"github.com/drims/drims-backend/pkg/errors"
)

// User represents an application user
type User struct {
	ID           int64     `db:"id" json:"id"`
	UserName     string    `db:"user_name" json:"user_name"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	RoleCode     string    `db:"role_code" json:"role_code"`
	StatusCode   string    `db:"status_code" json:"status_code"`
	CreateDtime  time.Time `db:"create_dtime" json:"create_dtime"`
	UpdateDtime  time.Time `db:"update_dtime" json:"update_dtime"`
	VersionNbr   int       `db:"version_nbr" json:"version_nbr"`
}

// UserRepository handles user data access
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO app_user (user_name, display_name, password_hash, role_code, status_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, create_dtime, update_dtime, version_nbr`

	err := r.db.QueryRowxContext(ctx, query,
		user.UserName,
		user.DisplayName,
		user.PasswordHash,
		user.RoleCode,
		user.StatusCode,
	).Scan(&user.ID, &user.CreateDtime, &user.UpdateDtime, &user.VersionNbr)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}

	return nil
}

// GetByID gets a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	var user User
	query := `SELECT * FROM app_user WHERE id = $1`

	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetByUserName gets an active user by username
func (r *UserRepository) GetByUserName(ctx context.Context, userName string) (*User, error) {
	var user User
	query := `SELECT * FROM app_user WHERE user_name = $1 AND status_code = 'A'`

	err := r.db.GetContext(ctx, &user, query, userName)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}
