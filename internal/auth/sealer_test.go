package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testSecret)
	if err != nil {
		t.Fatalf("NewSealer() error = %v", err)
	}
	msg := []byte(`{"access_token":"at"}`)

	sealed, err := s.Seal(msg)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("access_token")) {
		t.Fatal("sealed payload leaks plaintext")
	}
	again, _ := s.Seal(msg)
	if bytes.Equal(sealed, again) {
		t.Fatal("nonce reuse: identical ciphertexts")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(opened, msg) {
		t.Fatalf("Open() = %q", opened)
	}
}

func TestSealerRejectsForeignAndTampered(t *testing.T) {
	s, _ := NewSealer(testSecret)
	other, _ := NewSealer(strings.Repeat("z", 32))
	sealed, _ := s.Seal([]byte("secret"))

	if _, err := other.Open(sealed); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("foreign key: expected ErrSealBroken, got %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := s.Open(tampered); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("tampered: expected ErrSealBroken, got %v", err)
	}

	if _, err := s.Open([]byte("short")); !errors.Is(err, ErrSealBroken) {
		t.Fatalf("short: expected ErrSealBroken, got %v", err)
	}
}

func TestNewSealerShortSecret(t *testing.T) {
	if _, err := NewSealer("too-short"); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestHandoffCode(t *testing.T) {
	code, hash, err := newHandoffCode()
	if err != nil {
		t.Fatalf("newHandoffCode() error = %v", err)
	}
	if code == "" || strings.ContainsAny(code, "+/=") {
		t.Fatalf("code not url safe: %q", code)
	}
	if hash != hashHandoffCode(code) || hash == code {
		t.Fatalf("unexpected hash %q", hash)
	}
	other, _, _ := newHandoffCode()
	if other == code {
		t.Fatal("codes must be unique")
	}
}
