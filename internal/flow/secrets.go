package flow

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// EncryptSecret seals a workflow secret value under the process key.
// The random nonce is prepended to the ciphertext.
func EncryptSecret(key *[32]byte, plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return out, nil
}

// DecryptSecret opens a sealed workflow secret.
func DecryptSecret(key *[32]byte, ciphertext []byte) (string, error) {
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("secret decryption failed")
	}
	return string(plain), nil
}
