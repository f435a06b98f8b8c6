package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id + AES-256-GCM parameters for secrets at rest (provider API
// keys in the config file), adapted from the teacher's
// internal/services/crypto/encryption.go, which protects wallet
// mnemonics the same way; this package protects a different secret
// (a bearer token) with an identical scheme.
const (
	argon2Time    = 4
	argon2Memory  = 256 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	argon2SaltLen = 16
	aesNonceLen   = 12
)

// EncryptedSecret is the persisted form of a secret value.
type EncryptedSecret struct {
	Salt          []byte
	Nonce         []byte
	Ciphertext    []byte
	Argon2Time    uint32
	Argon2Memory  uint32
	Argon2Threads uint8
	Version       uint8
}

// EncryptSecret protects plaintext (a provider API key) with a key
// derived from passphrase via Argon2id.
func EncryptSecret(plaintext, passphrase string) (*EncryptedSecret, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, aesNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return &EncryptedSecret{
		Salt: salt, Nonce: nonce, Ciphertext: ciphertext,
		Argon2Time: argon2Time, Argon2Memory: argon2Memory, Argon2Threads: argon2Threads,
		Version: 1,
	}, nil
}

// DecryptSecret recovers the plaintext secret, or an error if passphrase
// is wrong or the data was tampered with.
func DecryptSecret(enc *EncryptedSecret, passphrase string) (string, error) {
	if enc == nil {
		return "", errors.New("encrypted secret is nil")
	}
	if len(enc.Salt) != argon2SaltLen {
		return "", fmt.Errorf("invalid salt length: got %d want %d", len(enc.Salt), argon2SaltLen)
	}
	if len(enc.Nonce) != aesNonceLen {
		return "", fmt.Errorf("invalid nonce length: got %d want %d", len(enc.Nonce), aesNonceLen)
	}

	key := argon2.IDKey([]byte(passphrase), enc.Salt, enc.Argon2Time, enc.Argon2Memory, enc.Argon2Threads, argon2KeyLen)
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", errors.New("authentication failed: wrong passphrase or corrupted secret")
	}
	defer clearBytes(plaintext)

	return string(plaintext), nil
}

// SerializeSecret packs an EncryptedSecret into the binary layout stored
// in the config file's provider.api_key_encrypted field:
// [version:1][time:4][memory:4][threads:1][salt:16][nonce:12][ciphertext:variable].
func SerializeSecret(enc *EncryptedSecret) []byte {
	size := 1 + 4 + 4 + 1 + len(enc.Salt) + len(enc.Nonce) + len(enc.Ciphertext)
	out := make([]byte, size)

	offset := 0
	out[offset] = enc.Version
	offset++
	binary.BigEndian.PutUint32(out[offset:], enc.Argon2Time)
	offset += 4
	binary.BigEndian.PutUint32(out[offset:], enc.Argon2Memory)
	offset += 4
	out[offset] = enc.Argon2Threads
	offset++
	copy(out[offset:], enc.Salt)
	offset += len(enc.Salt)
	copy(out[offset:], enc.Nonce)
	offset += len(enc.Nonce)
	copy(out[offset:], enc.Ciphertext)

	return out
}

// DeserializeSecret is SerializeSecret's inverse.
func DeserializeSecret(data []byte) (*EncryptedSecret, error) {
	minSize := 1 + 4 + 4 + 1 + argon2SaltLen + aesNonceLen
	if len(data) < minSize {
		return nil, fmt.Errorf("invalid encrypted secret: size %d < minimum %d", len(data), minSize)
	}

	offset := 0
	version := data[offset]
	offset++
	time := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	memory := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	threads := data[offset]
	offset++
	salt := append([]byte(nil), data[offset:offset+argon2SaltLen]...)
	offset += argon2SaltLen
	nonce := append([]byte(nil), data[offset:offset+aesNonceLen]...)
	offset += aesNonceLen
	ciphertext := append([]byte(nil), data[offset:]...)

	return &EncryptedSecret{
		Salt: salt, Nonce: nonce, Ciphertext: ciphertext,
		Argon2Time: time, Argon2Memory: memory, Argon2Threads: threads,
		Version: version,
	}, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
