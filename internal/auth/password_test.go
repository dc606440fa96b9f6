package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(bcrypt.MinCost)
}

func TestHash_OutputLooksBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("password123")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("Hash() does not look like a bcrypt hash: %q", hash)
	}
}

func TestHash_IsSalted(t *testing.T) {
	ps := newTestPasswordService()

	hash1, _ := ps.Hash("same-password")
	hash2, _ := ps.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("Hash() should accept a %d-byte password, got %v", MaxPasswordBytes, err)
	}

	_, err := ps.Hash(strings.Repeat("a", MaxPasswordBytes+1))
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("Hash() error = %v, want ErrPasswordTooLong", err)
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  bool
		mismatch bool
	}{
		{name: "correct password", hash: hash, password: "correct-horse-battery-staple"},
		{name: "wrong password", hash: hash, password: "tr0ub4dor&3", wantErr: true, mismatch: true},
		{name: "empty password", hash: hash, password: "", wantErr: true, mismatch: true},
		{name: "garbage hash", hash: "not-a-valid-bcrypt-hash", password: "x", wantErr: true},
		{name: "empty hash", hash: "", password: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if errors.Is(err, ErrPasswordMismatch) != tt.mismatch {
				t.Errorf("errors.Is(err, ErrPasswordMismatch) = %v, want %v", !tt.mismatch, tt.mismatch)
			}
		})
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	ps := newTestPasswordService()

	for _, password := range []string{"hello123", "p@$$w0rd!#%", "пароль-密码", "  padded  "} {
		t.Run(password, func(t *testing.T) {
			hash, err := ps.Hash(password)
			if err != nil {
				t.Fatalf("Hash(%q) error = %v", password, err)
			}
			if err := ps.Verify(hash, password); err != nil {
				t.Errorf("Verify() failed for %q: %v", password, err)
			}
		})
	}
}

func legacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func TestVerify_LegacySHA256(t *testing.T) {
	ps := newTestPasswordService()
	hash := legacyHash("s3cret")

	if !IsLegacyHash(hash) {
		t.Fatalf("IsLegacyHash(%q) = false", hash)
	}
	if err := ps.Verify(hash, "s3cret"); err != nil {
		t.Errorf("Verify() legacy hash error = %v", err)
	}
	if err := ps.Verify(strings.ToUpper(hash), "s3cret"); err != nil {
		t.Errorf("Verify() upper-case legacy hash error = %v", err)
	}
	if err := ps.Verify(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() error = %v, want ErrPasswordMismatch", err)
	}
}

func TestIsLegacyHash(t *testing.T) {
	bcryptHash, _ := newTestPasswordService().Hash("pw")

	tests := []struct {
		hash string
		want bool
	}{
		{legacyHash(""), true},
		{bcryptHash, false},
		{"", false},
		{strings.Repeat("z", 64), false},
		{strings.Repeat("a", 63), false},
	}
	for _, tt := range tests {
		if got := IsLegacyHash(tt.hash); got != tt.want {
			t.Errorf("IsLegacyHash(%q) = %v, want %v", tt.hash, got, tt.want)
		}
	}
}
