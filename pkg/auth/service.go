package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/getmockd/apilab/internal/id"
	"github.com/getmockd/apilab/pkg/logging"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserRepository is the persistence the Service needs. store.UserStore
// satisfies it.
type UserRepository interface {
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Count(ctx context.Context) (int, error)
}

// Service ties users to tokens.
type Service struct {
	users  UserRepository
	tokens *TokenIssuer
	log    *slog.Logger
}

// NewService creates a Service.
func NewService(users UserRepository, tokens *TokenIssuer, log *slog.Logger) *Service {
	return &Service{users: users, tokens: tokens, log: logging.OrNop(log)}
}

// Tokens returns the issuer used by the service.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil || u == nil {
		// Burn comparable time so unknown emails are not faster.
		CheckPassword(dummyHash(), password)
		return nil, ErrInvalidCredentials
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, User: u.Public()}, nil
}

// CreateUser validates, hashes the password and stores a new user.
func (s *Service) CreateUser(ctx context.Context, email, name, password string, role Role) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &User{
		ID:           id.ULID(),
		Email:        NormalizeEmail(email),
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Bootstrap creates an admin with the given credentials when no user exists
// yet. It reports whether a user was created.
func (s *Service) Bootstrap(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	u, err := s.CreateUser(ctx, email, "Administrator", password, RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	s.log.Info("created bootstrap admin", "email", u.Email, "id", u.ID)
	return true, nil
}

// Me returns the user identified by the claims.
func (s *Service) Me(ctx context.Context, claims *Claims) (*User, error) {
	u, err := s.users.Get(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	return u.Public(), nil
}

// dummyHash is compared against when the email is unknown.
var dummyHash = sync.OnceValue(func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(id.UUID()), bcrypt.DefaultCost)
	return string(h)
})
