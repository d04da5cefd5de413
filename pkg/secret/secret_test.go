package secret

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	s, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.HasPrefix(s, Prefix) {
		t.Errorf("Generate() = %q, missing prefix %q", s, Prefix)
	}
	if !IsSecret(s) {
		t.Errorf("IsSecret(%q) = false", s)
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, Prefix))
	if err != nil {
		t.Fatalf("secret body is not base64: %v", err)
	}
	if len(decoded) != DefaultLength {
		t.Errorf("decoded length = %d, want %d", len(decoded), DefaultLength)
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[s] {
			t.Fatalf("duplicate secret %s", s)
		}
		seen[s] = true
	}
}

func TestIsSecret(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"nmcs_abc", true},
		{"nmcs_", false},
		{"tmtk_abc", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSecret(tt.in); got != tt.want {
			t.Errorf("IsSecret(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHashVerify(t *testing.T) {
	s, _ := Generate()
	h, err := Hash(s)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if strings.Contains(h, s) {
		t.Fatal("hash contains the plaintext secret")
	}

	ok, err := Verify(s, h)
	if err != nil || !ok {
		t.Errorf("Verify(correct) = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = Verify(s+"x", h)
	if err != nil || ok {
		t.Errorf("Verify(wrong) = (%v, %v), want (false, nil)", ok, err)
	}

	h2, _ := Hash(s)
	if h == h2 {
		t.Error("two hashes of the same secret share a salt")
	}
}

func TestVerify_Malformed(t *testing.T) {
	tests := []string{
		"",
		"sha256$abc",
		"argon2id$!!!$abc",
		"argon2id$c2FsdA$c2hvcnQ",
	}
	for _, stored := range tests {
		if _, err := Verify("x", stored); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("Verify(%q) error = %v, want ErrMalformedHash", stored, err)
		}
		if err := CheckHash(stored); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("CheckHash(%q) error = %v, want ErrMalformedHash", stored, err)
		}
	}
}

func TestCheckHash_Valid(t *testing.T) {
	h, err := Hash("nmcs_abc")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := CheckHash(h); err != nil {
		t.Errorf("CheckHash() error = %v", err)
	}
}
