// Package secret seals provider API keys at rest with AES-256-GCM.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

const ivSize = 16

var ErrMalformed = errors.New("secret: malformed ciphertext")

type Box struct {
	aead cipher.AEAD
}

// New derives the 32-byte key from key, padding with '0' or truncating.
func New(key string) (*Box, error) {
	k := []byte(key)
	if len(k) < 32 {
		k = append(k, []byte(strings.Repeat("0", 32-len(k)))...)
	}
	block, err := aes.NewCipher(k[:32])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Encrypt returns "iv:authTag:ciphertext", each part hex encoded.
func (b *Box) Encrypt(plain string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	sealed := b.aead.Seal(nil, iv, []byte(plain), nil)
	tagStart := len(sealed) - b.aead.Overhead()
	ct, tag := sealed[:tagStart], sealed[tagStart:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

func (b *Box) Decrypt(sealed string) (string, error) {
	parts := strings.Split(sealed, ":")
	if len(parts) != 3 {
		return "", ErrMalformed
	}
	iv, err1 := hex.DecodeString(parts[0])
	tag, err2 := hex.DecodeString(parts[1])
	ct, err3 := hex.DecodeString(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || len(iv) != ivSize || len(tag) != b.aead.Overhead() {
		return "", ErrMalformed
	}
	plain, err := b.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrMalformed
	}
	return string(plain), nil
}

// Mask shows the first and last four characters of a key.
func Mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
