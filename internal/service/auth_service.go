package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
	"github.com/noah-isme/taskflow-api/internal/token"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
)

type authUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AuthService orchestrates registration, login, logout and token refresh on
// top of the token codec and the revocation store.
type AuthService struct {
	repo      authUserRepository
	codec     *token.Codec
	blacklist token.RevocationStore
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, codec *token.Codec, blacklist token.RevocationStore, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		repo:      repo,
		codec:     codec,
		blacklist: blacklist,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
	}
}

// Register creates a user, hashing the password before it is persisted, and
// issues an access token. Duplicate emails fail with a conflict.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		s.recordAttempt("register", "failure")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.recordAttempt("register", "failure")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		s.recordAttempt("register", "failure")
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.logger.Warn("registration rejected",
				zap.String("reason", "duplicate_email"),
				zap.String("email", req.Email),
				zap.String("ip", req.IP),
				zap.String("user_agent", req.UserAgent),
			)
			return nil, appErrors.Clone(appErrors.ErrConflict, "user already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	accessToken, err := s.codec.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		s.recordAttempt("register", "failure")
		return nil, err
	}

	s.recordAttempt("register", "success")
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("email", user.Email))

	return &models.AuthResponse{
		Message: "User created successfully",
		Token:   accessToken,
		User:    user.Info(),
	}, nil
}

// Login authenticates by email and password. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		s.recordAttempt("login", "failure")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		s.recordAttempt("login", "failure")
		if errors.Is(err, sql.ErrNoRows) {
			// The response stays uniform; the log keeps the real reason.
			s.logLoginFailure(req, "unknown_email", "")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.recordAttempt("login", "failure")
		s.logLoginFailure(req, "bad_password", user.ID)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	accessToken, err := s.codec.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		s.recordAttempt("login", "failure")
		return nil, err
	}

	s.recordAttempt("login", "success")
	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("email", user.Email))

	return &models.AuthResponse{
		Message: "Login successful",
		Token:   accessToken,
		User:    user.Info(),
	}, nil
}

// Logout blacklists the caller's current token. A missing token is not an
// error; logout always succeeds.
func (s *AuthService) Logout(ctx context.Context, rawToken, userID string) error {
	if rawToken == "" {
		return nil
	}

	if err := s.blacklist.Revoke(ctx, rawToken); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke token")
	}

	if s.metrics != nil {
		s.metrics.RecordRevocation()
	}
	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token must carry type=refresh; access tokens are rejected here.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		s.recordAttempt("refresh", "failure")
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	claims, err := s.codec.VerifyRefresh(req.RefreshToken)
	if err != nil {
		s.recordAttempt("refresh", "failure")
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid refresh token")
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		s.recordAttempt("refresh", "failure")
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "associated user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	accessToken, err := s.codec.Issue(user.ID, user.Email, string(user.Role))
	if err != nil {
		s.recordAttempt("refresh", "failure")
		return nil, err
	}

	s.recordAttempt("refresh", "success")

	return &models.AuthResponse{
		Message: "Token refreshed",
		Token:   accessToken,
		User:    user.Info(),
	}, nil
}

// CurrentUser loads the sanitized profile for the authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	info := user.Info()
	return &info, nil
}

func (s *AuthService) recordAttempt(attemptType, status string) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(attemptType, status)
	}
}

func (s *AuthService) logLoginFailure(req models.LoginRequest, reason, userID string) {
	fields := []zap.Field{
		zap.String("reason", reason),
		zap.String("email", req.Email),
		zap.String("ip", req.IP),
		zap.String("user_agent", req.UserAgent),
	}
	if userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}
	s.logger.Warn("login failed", fields...)
}
