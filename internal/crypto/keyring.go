// SPDX-FileCopyrightText: 2025 Mads R. Havmand <mads@v42.dk>
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package crypto provides the encryption boundary for stored API keys. A
// single AES-256-GCM key is derived from the startup secret; plaintext keys
// exist only transiently inside this package and inside adapter construction.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/lifedeck/aigw"
)

// keyInfo binds derived keys to this use. Changing it invalidates every
// stored ciphertext.
const keyInfo = "aigw/credential-store/v1"

type envelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Keyring encrypts and decrypts credential plaintexts with a process-wide
// key. It is safe for concurrent use.
type Keyring struct {
	aead cipher.AEAD
}

// NewKeyring derives the symmetric key from secret via HKDF-SHA256. An empty
// secret is a fatal configuration error: the process must not start without
// the ability to decrypt stored credentials.
func NewKeyring(secret string) (*Keyring, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &aigw.ConfigurationError{Setting: "credential-secret", Reason: "must not be empty"}
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &Keyring{aead: aead}, nil
}

// EncryptString seals plaintext into an opaque envelope suitable for storage.
func (k *Keyring) EncryptString(plaintext string) (string, error) {
	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ciphertext := k.aead.Seal(nil, nonce, []byte(plaintext), nil)

	b, err := json.Marshal(envelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

// DecryptString opens an envelope produced by EncryptString.
func (k *Keyring) DecryptString(raw string) (string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	plaintext, err := k.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Mask produces the displayable form of an API key: a short prefix, a fixed
// filler, and the last few characters ("sk-****xyz123"). Keys too short to
// mask safely are fully redacted.
func Mask(key string) string {
	const visibleTail = 6
	if len(key) < visibleTail+4 {
		return "****"
	}
	prefix := key[:3]
	return prefix + "****" + key[len(key)-visibleTail:]
}
