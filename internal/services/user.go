package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/boatfuel/fueltracker/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserService encapsulates user use-cases.
type UserService struct {
	runner TxRunner
	repo   func(db txn.DBTX) UserRepository
	now    func() time.Time
	cost   int
}

func NewUserService(runner TxRunner, repo func(db txn.DBTX) UserRepository) *UserService {
	return &UserService{
		runner: runner,
		repo:   repo,
		now:    time.Now,
		cost:   bcrypt.DefaultCost,
	}
}

// Register creates an account with a fresh UUID and a bcrypt password hash.
func (s *UserService) Register(ctx context.Context, email, displayName, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return types.User{}, &ValidationError{Field: "email", Reason: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return types.User{}, &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	if len(password) < minPasswordLength {
		return types.User{}, &ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return types.User{}, err
	}

	user := types.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hashed),
	}

	var created types.User
	err = s.runner.WithTx(ctx, func(ctx context.Context, tx txn.DBTX) error {
		var err error
		created, err = s.repo(tx).Create(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return types.User{}, ErrConflict
		}
		return types.User{}, storageError("create user", err)
	}
	return created, nil
}

// Authenticate checks credentials and records the login time.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (types.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return types.User{}, ErrInvalidCredentials
	}

	var user types.User
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx txn.DBTX) error {
		repo := s.repo(tx)
		found, err := repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password)); err != nil {
			return ErrInvalidCredentials
		}
		now := s.now().UTC()
		if err := repo.UpdateLastLogin(ctx, found.ID, now); err != nil {
			return err
		}
		found.LastLogin = &now
		user = found
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidCredentials) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, storageError("authenticate", err)
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	var user types.User
	err := s.runner.Run(ctx, func(ctx context.Context, db txn.DBTX) error {
		var err error
		user, err = s.repo(db).GetByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, storageError("get user", err)
	}
	return user, nil
}

// Delete removes the user together with their fuel-ups.
func (s *UserService) Delete(ctx context.Context, id string) error {
	err := s.runner.WithTx(ctx, func(ctx context.Context, tx txn.DBTX) error {
		return s.repo(tx).Delete(ctx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storageError("delete user", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
