package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// ErrIdentityConflict means the buyer record could neither be found nor
// created after repeated attempts.
var ErrIdentityConflict = errors.New("identity conflict")

const maxResolveAttempts = 3

// Credentials issues the placeholder password hashes stored for buyers that
// are created implicitly.
type Credentials struct {
	cost int
}

func NewCredentials(cost int) Credentials {
	return Credentials{cost: cost}
}

// Placeholder returns a bcrypt hash of a random secret nobody knows.
func (c Credentials) Placeholder() (string, error) {
	secret, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("service: failed to generate placeholder secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(secret.Bytes(), c.cost)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to hash placeholder secret")
		return "", fmt.Errorf("service: failed to hash placeholder secret: %w", err)
	}
	return string(hash), nil
}

type Service interface {
	// Resolve returns the user registered under email, creating one with the
	// given name if none exists. An existing user is returned unchanged.
	Resolve(ctx context.Context, name, email string) (*User, error)
	// ResolveWithHash is Resolve with the password hash of a new user
	// supplied by the caller, so it does no hashing of its own.
	ResolveWithHash(ctx context.Context, name, email, passwordHash string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

type service struct {
	repo        Repository
	credentials Credentials
}

func NewService(repo Repository) Service {
	return &service{repo: repo, credentials: NewCredentials(bcrypt.DefaultCost)}
}

// NewServiceWithCost is NewService with a custom bcrypt cost.
func NewServiceWithCost(repo Repository, cost int) Service {
	return &service{repo: repo, credentials: NewCredentials(cost)}
}

func (s *service) Resolve(ctx context.Context, name, email string) (*User, error) {
	return s.resolve(ctx, name, email, s.credentials.Placeholder)
}

func (s *service) ResolveWithHash(ctx context.Context, name, email, passwordHash string) (*User, error) {
	if passwordHash == "" {
		return nil, errors.New("password hash is required")
	}
	return s.resolve(ctx, name, email, func() (string, error) { return passwordHash, nil })
}

func (s *service) resolve(ctx context.Context, name, email string, hash func() (string, error)) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		existing, err := s.repo.GetByEmail(ctx, email)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("email", email).Msg("service: failed to look up user")
			return nil, fmt.Errorf("service: failed to look up user: %w", err)
		}

		created, err := s.create(ctx, name, email, hash)
		if err == nil {
			log.Info().Int64("user_id", created.ID).Str("email", email).Msg("service: created buyer")
			return created, nil
		}
		if !errors.Is(err, ErrEmailExists) {
			return nil, err
		}
		log.Warn().Str("email", email).Int("attempt", attempt).Msg("service: concurrent user creation, retrying lookup")
	}

	return nil, fmt.Errorf("%w: %s", ErrIdentityConflict, email)
}

func (s *service) create(ctx context.Context, name, email string, hash func() (string, error)) (*User, error) {
	passwordHash, err := hash()
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = DefaultName(email)
	}

	u := &User{Name: name, Email: email, PasswordHash: passwordHash}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		log.Error().Err(err).Str("email", email).Msg("service: failed to create user")
		return nil, fmt.Errorf("service: failed to create user: %w", err)
	}
	return u, nil
}

func (s *service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		log.Error().Err(err).Msg("service: failed to get user by email")
		return nil, fmt.Errorf("service: failed to get user by email: %w", err)
	}
	return u, nil
}
