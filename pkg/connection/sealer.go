package connection

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Sealer protects credential payloads at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// NewAgeSealer returns a sealer encrypting to the recipient of identity. Sealed payloads are ASCII
// armored so they can be stored as strings.
func NewAgeSealer(identity *age.X25519Identity) *AgeSealer {
	return &AgeSealer{identity: identity}
}

// ParseAgeSealer parses an AGE-SECRET-KEY-1... identity.
func ParseAgeSealer(identity string) (*AgeSealer, error) {
	i, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("failed to parse age identity: %v", err)
	}
	return NewAgeSealer(i), nil
}

type AgeSealer struct {
	identity *age.X25519Identity
}

func (s AgeSealer) Seal(plaintext string) (string, error) {
	var b bytes.Buffer
	armorWriter := armor.NewWriter(&b)
	w, err := age.Encrypt(armorWriter, s.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("failed to seal credential: %v", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("failed to seal credential: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to seal credential: %v", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("failed to seal credential: %v", err)
	}
	return b.String(), nil
}

func (s AgeSealer) Open(sealed string) (string, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(sealed)), s.identity)
	if err != nil {
		return "", fmt.Errorf("failed to open credential: %v", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to open credential: %v", err)
	}
	return string(plaintext), nil
}

type plain struct{}

func (plain) Seal(plaintext string) (string, error) { return plaintext, nil }

func (plain) Open(sealed string) (string, error) { return sealed, nil }
