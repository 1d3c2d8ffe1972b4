package crypto

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	b, _ := GenerateToken()

	if len(a) != 2*tokenBytes {
		t.Errorf("token length = %d, want %d", len(a), 2*tokenBytes)
	}
	if len(a) > MaxTokenLength {
		t.Error("generated token must fit bcrypt limit")
	}
	if a == b {
		t.Error("tokens should differ")
	}
}

func TestHashAndVerifyToken(t *testing.T) {
	token, _ := GenerateToken()
	hash, err := HashTokenWithCost(token, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashTokenWithCost failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$") && !strings.HasPrefix(hash, "$2b$") {
		t.Errorf("unexpected hash prefix: %s", hash[:4])
	}

	tests := []struct {
		name  string
		token string
		hash  string
		want  error
	}{
		{"match", token, hash, nil},
		{"mismatch", token + "x", hash, ErrTokenMismatch},
		{"empty token", "", hash, ErrEmptyToken},
		{"empty hash", token, "", ErrInvalidHash},
		{"garbage hash", token, "not-a-hash", ErrInvalidHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyToken(tt.token, tt.hash)
			if !errors.Is(err, tt.want) {
				t.Errorf("VerifyToken() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHashTokenErrors(t *testing.T) {
	if _, err := HashToken(""); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("empty token: %v", err)
	}
	if _, err := HashToken(strings.Repeat("a", MaxTokenLength+1)); !errors.Is(err, ErrTokenTooLong) {
		t.Errorf("long token: %v", err)
	}
}

func TestHashTokenWithCost_Clamped(t *testing.T) {
	hash, err := HashTokenWithCost("secret", 1)
	if err != nil {
		t.Fatalf("HashTokenWithCost failed: %v", err)
	}
	cost, _ := bcrypt.Cost([]byte(hash))
	if cost != bcrypt.MinCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.MinCost)
	}
}

func TestValidateHash(t *testing.T) {
	hash, _ := HashTokenWithCost("secret", bcrypt.MinCost)
	if err := ValidateHash(hash); err != nil {
		t.Errorf("valid hash rejected: %v", err)
	}
	if err := ValidateHash("plain-token"); !errors.Is(err, ErrInvalidHash) {
		t.Errorf("plain token accepted: %v", err)
	}
}

func BenchmarkVerifyToken(b *testing.B) {
	hash, _ := HashTokenWithCost("benchmark", bcrypt.MinCost)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = VerifyToken("benchmark", hash)
	}
}
