package tokencrypt

import (
    "crypto/cipher"
    "crypto/rand"
    "encoding/base64"
    "errors"
    "fmt"
    "strings"

    "golang.org/x/crypto/chacha20poly1305"

    "github.com/bcgov/showcase-traction-adapter/internal/adaptercfg"
)

// Fixed sizes, validated on every call so a truncated key or nonce can never
// silently weaken the cipher.
const (
    KeySize   = chacha20poly1305.KeySize // 32
    NonceSize = chacha20poly1305.NonceSize // 12
    TagSize   = chacha20poly1305.Overhead // 16
)

// DecryptionError reports a failed Open: bad tag, bad nonce length, or
// malformed input. The plaintext is never part of the message.
type DecryptionError struct {
    Reason string
}

func (e *DecryptionError) Error() string { return "token decryption failed: " + e.Reason }

// Codec seals and opens bearer tokens carried as broker message fields. It is
// a pure byte transform with no knowledge of message semantics.
type Codec struct {
    aead cipher.AEAD
}

// New builds a Codec from the process-wide symmetric key. The key is base64
// (raw std) encoded in configuration; a missing or wrong-size key is a fatal
// configuration error.
func New(cfg adaptercfg.CryptoConfig) (*Codec, error) {
    if strings.TrimSpace(cfg.Key) == "" {
        return nil, errors.New("crypto key not configured")
    }
    key, err := base64.RawStdEncoding.DecodeString(strings.TrimSpace(cfg.Key))
    if err != nil {
        return nil, fmt.Errorf("decode crypto key: %w", err)
    }
    if len(key) != KeySize {
        return nil, fmt.Errorf("crypto key wrong size: got %d want %d", len(key), KeySize)
    }
    aead, err := chacha20poly1305.New(key)
    if err != nil {
        return nil, err
    }
    return &Codec{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce and returns the
// ciphertext (tag appended) and the nonce.
func (c *Codec) Seal(plaintext []byte) ([]byte, []byte, error) {
    if c == nil || c.aead == nil {
        return nil, nil, errors.New("codec not initialized")
    }
    nonce := make([]byte, NonceSize)
    if _, err := rand.Read(nonce); err != nil {
        return nil, nil, err
    }
    return c.aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open authenticates and decrypts ciphertext produced by Seal.
func (c *Codec) Open(ciphertext, nonce []byte) ([]byte, error) {
    if c == nil || c.aead == nil {
        return nil, &DecryptionError{Reason: "codec not initialized"}
    }
    if len(ciphertext) == 0 {
        return nil, &DecryptionError{Reason: "empty ciphertext"}
    }
    if len(nonce) != NonceSize {
        return nil, &DecryptionError{Reason: fmt.Sprintf("nonce wrong size: got %d want %d", len(nonce), NonceSize)}
    }
    if len(ciphertext) < TagSize {
        return nil, &DecryptionError{Reason: "ciphertext shorter than tag"}
    }
    pt, err := c.aead.Open(nil, nonce, ciphertext, nil)
    if err != nil {
        return nil, &DecryptionError{Reason: "authentication failed"}
    }
    return pt, nil
}
