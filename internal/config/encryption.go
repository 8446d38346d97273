// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Credential encryption for portal tokens stored at rest.
//
// Tokens are sealed with AES-256-GCM using a key derived from the JWT secret
// via HKDF-SHA256, so rotating the JWT secret invalidates every stored
// credential. Ciphertext layout is base64(nonce || ciphertext || tag).
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// credentialSalt binds derived keys to this application's credential
	// encryption use case.
	credentialSalt = "bunkr-portal-credentials"
	credentialInfo = "credential-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	ErrEmptySecret       = errors.New("encryption secret cannot be empty")
	ErrEmptyPlaintext    = errors.New("plaintext cannot be empty")
	ErrEmptyCiphertext   = errors.New("ciphertext cannot be empty")
	ErrDecryptionFailed  = errors.New("decryption failed: invalid ciphertext or authentication tag")
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrCiphertextShort   = errors.New("ciphertext too short")
)

// CredentialEncryptor seals and opens portal credentials with AES-256-GCM.
type CredentialEncryptor struct {
	aead cipher.AEAD
}

// NewCredentialEncryptor derives a 256-bit AES key from the JWT secret and
// returns an encryptor ready for use.
func NewCredentialEncryptor(jwtSecret string) (*CredentialEncryptor, error) {
	if jwtSecret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{aead: gcm}, nil
}

// Encrypt seals a plaintext credential and returns base64(nonce || sealed).
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	// nonce (12) + at least 1 byte + tag (16)
	if len(data) < gcmNonceSize+1+e.aead.Overhead() {
		return "", ErrCiphertextShort
	}

	nonce, sealed := data[:gcmNonceSize], data[gcmNonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// MaskCredential returns a display-safe form showing only the last 4
// characters.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

func deriveKey(jwtSecret string) ([]byte, error) {
	reader := hkdf.New(
		sha256.New,
		[]byte(jwtSecret),
		[]byte(credentialSalt),
		[]byte(credentialInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}
