package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("")
	if len(id) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%q)", len(id), id)
	}
	token := NewID("sess")
	if !strings.HasPrefix(token, "sess_") || len(token) != len("sess_")+32 {
		t.Fatalf("unexpected token shape %q", token)
	}
	if NewID("sess") == token {
		t.Fatal("two tokens must not collide")
	}
}
