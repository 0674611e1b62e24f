package auth

import (
	"errors"
	"testing"
	"time"
)

func TestResolveRoundTrip(t *testing.T) {
	r := NewResolver("test-signing-key", "hearthbeat", "hearthbeat-clients")

	token, err := r.GenerateToken(7, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	userID, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if userID != 7 {
		t.Errorf("expected user 7, got %d", userID)
	}
}

func TestResolveRejectsGarbage(t *testing.T) {
	r := NewResolver("test-signing-key", "hearthbeat", "hearthbeat-clients")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := r.Resolve(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestResolveRejectsWrongKey(t *testing.T) {
	issuer := NewResolver("key-one", "hearthbeat", "hearthbeat-clients")
	verifier := NewResolver("key-two", "hearthbeat", "hearthbeat-clients")

	token, err := issuer.GenerateToken(7, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := verifier.Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}

func TestResolveRejectsExpired(t *testing.T) {
	r := NewResolver("test-signing-key", "hearthbeat", "hearthbeat-clients")

	token, err := r.GenerateToken(7, -time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := r.Resolve(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
