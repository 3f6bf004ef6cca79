package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/coffeeshop/shop/internal/auth"
	"github.com/coffeeshop/shop/internal/domain"
	"github.com/coffeeshop/shop/internal/repository"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

type AuthService struct {
	users    repository.UserRepository
	tokens   *auth.Tokens
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAuthService(users repository.UserRepository, tokens *auth.Tokens, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		logger:   logger,
		validate: newValidator(),
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	user, err := s.createUser(ctx, in.Name, in.Email, in.Password, false)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID.Hex())
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, unauthenticated("invalid email or password")
	}
	if err != nil {
		return nil, translate("find user", err)
	}

	if err := auth.CheckPassword(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, unauthenticated("invalid email or password")
		}
		return nil, translate("check password", err)
	}
	return s.issue(user)
}

// Me returns the user behind an authenticated identity.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, unauthenticated("authentication required")
	}
	oid, err := domain.ParseID(userID)
	if err != nil {
		return nil, unauthenticated("invalid token subject")
	}
	user, err := s.users.FindByID(ctx, oid)
	if err != nil {
		return nil, translate("find user", err)
	}
	return user, nil
}

// EnsureUser creates the account unless the email is already registered.
// It reports whether a user was created.
func (s *AuthService) EnsureUser(ctx context.Context, name, email, password string, isAdmin bool) (bool, error) {
	_, err := s.createUser(ctx, name, email, password, isAdmin)
	var se *Error
	if errors.As(err, &se) && se.Code() == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate verifies a bearer token.
func (s *AuthService) Authenticate(token string) (auth.Identity, error) {
	id, err := s.tokens.Verify(token)
	if err != nil {
		return auth.Identity{}, newError(codes.Unauthenticated, "invalid or expired token", err)
	}
	return id, nil
}

func (s *AuthService) createUser(ctx context.Context, name, email, password string, isAdmin bool) (*domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, translate("hash password", err)
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, translate("create user", err)
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(auth.Identity{UserID: user.ID.Hex(), IsAdmin: user.IsAdmin})
	if err != nil {
		return nil, translate("issue token", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}
