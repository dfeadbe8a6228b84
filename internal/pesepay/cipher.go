package pesepay

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Cipher seals and opens the encrypted JSON envelope exchanged with the
// gateway on the initiate endpoint. The pre-shared secret's UTF-8 bytes are
// used directly as the AES key with no KDF, matching the gateway's contract.
type Cipher struct {
	aead cipher.AEAD
}

// DecryptionError is returned when an envelope cannot be opened: malformed
// payload, wrong key, or a GCM tag that does not verify.
type DecryptionError struct {
	Reason string
	Err    error
}

// Error implements the error interface
func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt payload: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt payload: %s", e.Reason)
}

// Unwrap returns the underlying error
func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// NewCipher creates a Cipher from the configured encryption key. The key must
// be 16, 24 or 32 bytes long (AES-128/192/256).
func NewCipher(key string) (*Cipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init AES-GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt marshals v to JSON and seals it under a fresh random nonce. The
// result is "nonceBase64:cipherBase64"; the nonce is never reused.
func (c *Cipher) Encrypt(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plain, nil)
	return base64.StdEncoding.EncodeToString(nonce) + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a "nonceBase64:cipherBase64" envelope and unmarshals the
// plaintext JSON into v.
func (c *Cipher) Decrypt(payload string, v any) error {
	nonceB64, cipherB64, found := strings.Cut(payload, ":")
	if !found {
		return &DecryptionError{Reason: "payload is missing the nonce separator"}
	}

	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return &DecryptionError{Reason: "nonce is not valid base64", Err: err}
	}
	if len(nonce) != c.aead.NonceSize() {
		return &DecryptionError{Reason: fmt.Sprintf("nonce must be %d bytes, got %d", c.aead.NonceSize(), len(nonce))}
	}

	sealed, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return &DecryptionError{Reason: "ciphertext is not valid base64", Err: err}
	}

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return &DecryptionError{Reason: "authentication failed, wrong key or corrupted payload", Err: err}
	}

	if err := json.Unmarshal(plain, v); err != nil {
		return &DecryptionError{Reason: "plaintext is not valid JSON", Err: err}
	}
	return nil
}
