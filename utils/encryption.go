package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"os"
)

var (
	errInvalidEncryptionKeyLength = errors.New("TOKEN_ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	errCiphertextTooShort         = errors.New("encrypted token is too short or malformed")
)

func getEncryptionKey() ([]byte, error) {
	key := os.Getenv("TOKEN_ENCRYPTION_KEY")
	if key == "" {
		return nil, nil
	}
	if len(key) != 32 {
		return nil, errInvalidEncryptionKeyLength
	}
	return []byte(key), nil
}

// EncryptToken encrypts an access token with AES-256-GCM using the key from
// TOKEN_ENCRYPTION_KEY. Without a key the token is stored as-is (not
// recommended for production).
func EncryptToken(token string) (string, error) {
	keyBytes, err := getEncryptionKey()
	if err != nil {
		return "", err
	}
	if len(keyBytes) == 0 {
		return token, nil
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptToken reverses EncryptToken.
func DecryptToken(encryptedToken string) (string, error) {
	keyBytes, err := getEncryptionKey()
	if err != nil {
		return "", err
	}
	if len(keyBytes) == 0 {
		return encryptedToken, nil
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encryptedToken)
	if err != nil {
		// Tolerate tokens saved before a key was configured.
		return encryptedToken, nil
	}
	if len(data) < gcm.NonceSize() {
		return "", errCiphertextTooShort
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
