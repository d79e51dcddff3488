package service

import (
	"context"
	"time"

	"github.com/drims/drims-backend/internal/identity/events"
	"github.com/drims/drims-backend/internal/identity/jwt"
	"github.com/drims/drims-backend/internal/identity/repository"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles authentication logic
type AuthService struct {
	repo       *repository.UserRepository
	jwtManager *jwt.Manager
	publisher  *events.UserEventPublisher
	logger     *logger.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(repo *repository.UserRepository, jwtManager *jwt.Manager, publisher *events.UserEventPublisher, log *logger.Logger) *AuthService {
	return &AuthService{
		repo:       repo,
		jwtManager: jwtManager,
		publisher:  publisher,
		logger:     log,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	UserName string `json:"user_name" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
	User        *UserInfo `json:"user"`
}

// UserInfo represents user information
type UserInfo struct {
	ID          int64  `json:"id"`
	UserName    string `json:"user_name"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Login authenticates a user and returns an access token
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	user, err := s.repo.GetByUserName(ctx, req.UserName)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.InvalidCredentials()
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.InvalidCredentials()
	}

	token, err := s.jwtManager.Generate(&jwt.UserInfo{
		ID:          user.ID,
		UserName:    user.UserName,
		DisplayName: user.DisplayName,
		Role:        user.RoleCode,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_name", user.UserName).Msg("failed to generate token")
		return nil, errors.Internal("failed to generate token")
	}

	return &LoginResponse{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.ExpiresAt,
		TokenType:   token.TokenType,
		User: &UserInfo{
			ID:          user.ID,
			UserName:    user.UserName,
			DisplayName: user.DisplayName,
			Role:        user.RoleCode,
		},
	}, nil
}

// CreateUserRequest represents a user creation request
type CreateUserRequest struct {
	UserName    string `json:"user_name" validate:"required,min=3,max=100"`
	DisplayName string `json:"display_name" validate:"required,max=255"`
	Password    string `json:"password" validate:"required,min=8"`
	RoleCode    string `json:"role_code" validate:"required,oneof=ADMIN COORDINATOR OPERATOR"`
}

// CreateUser registers a new user
func (s *AuthService) CreateUser(ctx context.Context, req *CreateUserRequest) (*repository.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal("failed to hash password")
	}

	user := &repository.User{
		UserName:     req.UserName,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		RoleCode:     req.RoleCode,
		StatusCode:   "A",
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.publisher.PublishUserCreated(ctx, user)
	return user, nil
}

// GetCurrentUser gets the current user by ID
func (s *AuthService) GetCurrentUser(ctx context.Context, userID int64) (*UserInfo, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserInfo{
		ID:          user.ID,
		UserName:    user.UserName,
		DisplayName: user.DisplayName,
		Role:        user.RoleCode,
	}, nil
}
