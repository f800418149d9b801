package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
)

// NewAESGCM creates an AES-256-GCM cipher. Key must be 32 bytes.
func NewAESGCM(key []byte) (Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrBadKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aeadCipher{alg: AlgorithmAESGCM, aead: aead}, nil
}
