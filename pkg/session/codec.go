package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// Codec converts a session to and from its on-disk form. Decode must fail
// on any damaged input so the store can fall back to the backup.
type Codec interface {
	Encode(*Session) ([]byte, error)
	Decode([]byte) (*Session, error)
}

// JSONCodec stores sessions as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(s *Session) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func (JSONCodec) Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// EncryptedCodec wraps the JSON form in AES-256-GCM with a key derived from
// a passphrase via PBKDF2-SHA256. Each Encode uses a fresh salt and nonce.
type EncryptedCodec struct {
	passphrase string
}

// NewEncryptedCodec creates an encrypting codec.
func NewEncryptedCodec(passphrase string) (*EncryptedCodec, error) {
	if passphrase == "" {
		return nil, errors.New("empty session passphrase")
	}
	return &EncryptedCodec{passphrase: passphrase}, nil
}

type envelope struct {
	Version   int    `json:"version"`
	Salt      []byte `json:"salt"`
	Encrypted []byte `json:"encrypted"`
}

func (c *EncryptedCodec) Encode(s *Session) ([]byte, error) {
	plain, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	encrypted, err := encrypt(plain, c.key(salt))
	if err != nil {
		return nil, fmt.Errorf("encrypt session: %w", err)
	}

	return json.Marshal(envelope{Version: 1, Salt: salt, Encrypted: encrypted})
}

func (c *EncryptedCodec) Decode(data []byte) (*Session, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Salt) != saltSize {
		return nil, errors.New("invalid session salt")
	}

	plain, err := decrypt(env.Encrypted, c.key(env.Salt))
	if err != nil {
		return nil, fmt.Errorf("decrypt session: %w", err)
	}
	return JSONCodec{}.Decode(plain)
}

func (c *EncryptedCodec) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(c.passphrase), salt, iterations, keySize, sha256.New)
}

// encrypt encrypts data using AES-GCM
func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
