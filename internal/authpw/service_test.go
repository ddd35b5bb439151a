package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

type fakePasswordStore struct {
	hashes map[int64]string
}

func newFakePasswordStore() *fakePasswordStore {
	return &fakePasswordStore{hashes: make(map[int64]string)}
}

func (f *fakePasswordStore) UpsertProgramPassword(_ context.Context, programID int64, hash string) error {
	f.hashes[programID] = hash
	return nil
}

func (f *fakePasswordStore) GetProgramPasswordHash(_ context.Context, programID int64) (string, error) {
	hash, ok := f.hashes[programID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return hash, nil
}

func TestSetPasswordStoresBcryptHash(t *testing.T) {
	store := newFakePasswordStore()
	service := NewService(store)

	if err := service.SetPassword(context.Background(), 1, "garden2026"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	hash := store.hashes[1]
	if hash == "garden2026" {
		t.Fatal("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("garden2026")); err != nil {
		t.Fatalf("stored value is not a bcrypt hash of the password: %v", err)
	}
}

func TestSetPasswordRequiresInput(t *testing.T) {
	service := NewService(newFakePasswordStore())
	if err := service.SetPassword(context.Background(), 0, "x"); err == nil {
		t.Fatal("expected error for missing program id")
	}
	if err := service.SetPassword(context.Background(), 1, ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerify(t *testing.T) {
	store := newFakePasswordStore()
	service := NewService(store)
	if err := service.SetPassword(context.Background(), 1, "garden2026"); err != nil {
		t.Fatal(err)
	}

	if err := service.Verify(context.Background(), 1, "garden2026"); err != nil {
		t.Fatalf("correct password rejected: %v", err)
	}
	if err := service.Verify(context.Background(), 1, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := service.Verify(context.Background(), 99, "garden2026"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown program must map to ErrInvalidCredentials, got %v", err)
	}
}

func TestSetPasswordOverwrites(t *testing.T) {
	store := newFakePasswordStore()
	service := NewService(store)

	if err := service.SetPassword(context.Background(), 1, "first"); err != nil {
		t.Fatal(err)
	}
	if err := service.SetPassword(context.Background(), 1, "second"); err != nil {
		t.Fatal(err)
	}
	if err := service.Verify(context.Background(), 1, "first"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("old password must stop working after reset")
	}
	if err := service.Verify(context.Background(), 1, "second"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}
