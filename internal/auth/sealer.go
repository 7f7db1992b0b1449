package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize  = 24
	minSecret  = 32
	handoffLen = 32
	sealerInfo = "calsync token handoff v1"
)

// ErrSealBroken is returned when a sealed payload fails authentication.
var ErrSealBroken = errors.New("sealed payload could not be opened")

// Sealer encrypts token bundles at rest with a key derived from the server secret.
type Sealer struct {
	key [32]byte
}

func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < minSecret {
		return nil, fmt.Errorf("token secret must be at least %d characters", minSecret)
	}
	s := &Sealer{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(kdf, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return s, nil
}

// Seal returns nonce || secretbox(plaintext).
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealBroken
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrSealBroken
	}
	return out, nil
}

// newHandoffCode returns an opaque code for the client and the hash stored server side.
func newHandoffCode() (code, hash string, err error) {
	buf := make([]byte, handoffLen)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate handoff code: %w", err)
	}
	code = base64.RawURLEncoding.EncodeToString(buf)
	return code, hashHandoffCode(code), nil
}

func hashHandoffCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
