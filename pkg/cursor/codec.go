package cursor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"encoding/base64"

	"github.com/bitechdev/ServeSpec/pkg/logger"
	"golang.org/x/crypto/chacha20poly1305"
)

// KMS is the key-management collaborator used to make pagination cursors
// opaque. Implementations must be safe for concurrent use.
type KMS interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Codec encrypts and decrypts pagination cursors. Without a KMS it passes
// cursors through untouched. Any KMS failure yields an empty cursor, which
// callers treat as "start from the beginning" rather than an error.
type Codec struct {
	kms KMS
}

// NewCodec creates a cursor codec. kms may be nil for pass-through mode.
func NewCodec(kms KMS) *Codec {
	return &Codec{kms: kms}
}

// Encrypt turns a raw store cursor into an opaque URL-safe token
func (c *Codec) Encrypt(ctx context.Context, cursor string) string {
	if cursor == "" {
		return ""
	}
	if c == nil || c.kms == nil {
		return cursor
	}

	encrypted, err := c.kms.Encrypt(ctx, []byte(cursor))
	if err != nil {
		logger.Warn("Failed to encrypt page cursor: %v", err)
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(encrypted)
}

// Decrypt turns an opaque token back into the raw store cursor
func (c *Codec) Decrypt(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}
	if c == nil || c.kms == nil {
		return token
	}

	encrypted, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		logger.Warn("Failed to decode page cursor: %v", err)
		return ""
	}

	cursor, err := c.kms.Decrypt(ctx, encrypted)
	if err != nil {
		logger.Warn("Failed to decrypt page cursor: %v", err)
		return ""
	}
	return string(cursor)
}

// LocalKMS is an in-process KMS implementation deriving an AEAD key from
// the configured key identity. It stands in where no managed KMS is
// reachable; the wire format is nonce || ciphertext.
type LocalKMS struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewLocalKMS derives the AEAD key from the project/location/keyring/key
// identity so that every replica with the same configuration interoperates.
func NewLocalKMS(project, location, keyring, key string) (*LocalKMS, error) {
	material := sha256.Sum256([]byte(project + "/" + location + "/" + keyring + "/" + key))
	aead, err := chacha20poly1305.NewX(material[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cursor cipher: %w", err)
	}
	return &LocalKMS{aead: aead}, nil
}

// Encrypt seals the plaintext with a random nonce
func (k *LocalKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return k.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce-prefixed ciphertext
func (k *LocalKMS) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("ciphertext is too short")
	}
	nonce, sealed := ciphertext[:chacha20poly1305.NonceSizeX], ciphertext[chacha20poly1305.NonceSizeX:]
	return k.aead.Open(nil, nonce, sealed, nil)
}
