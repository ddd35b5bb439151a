// Package authpw provides per-program password authentication.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for an unknown program or a wrong
// password; callers must not distinguish the two.
var ErrInvalidCredentials = errors.New("invalid program or password")

// PasswordStore defines the storage interface for program passwords
type PasswordStore interface {
	UpsertProgramPassword(ctx context.Context, programID int64, passwordHash string) error
	GetProgramPasswordHash(ctx context.Context, programID int64) (string, error)
}

// Service hashes and verifies program passwords
type Service struct {
	store PasswordStore
}

func NewService(store PasswordStore) *Service {
	return &Service{store: store}
}

// SetPassword hashes and stores (or replaces) a program's password.
func (s *Service) SetPassword(ctx context.Context, programID int64, password string) error {
	if programID <= 0 || password == "" {
		return errors.New("programId and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpsertProgramPassword(ctx, programID, string(hash)); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// Verify checks a program's password against the stored hash.
func (s *Service) Verify(ctx context.Context, programID int64, password string) error {
	if programID <= 0 || password == "" {
		return ErrInvalidCredentials
	}

	hash, err := s.store.GetProgramPasswordHash(ctx, programID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup password: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
