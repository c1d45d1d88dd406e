package rarlist

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// rar5KDF derives a 32-byte AES-256 key from password/salt/iterations:
// PBKDF2-HMAC-SHA256, matching RAR5's "encryption version 0" scheme.
// Unlike RAR3, RAR5 stores the CBC IV directly in the encryption record
// rather than deriving it alongside the key.
func rar5KDF(password string, salt []byte, iterations uint32) []byte {
	return pbkdf2.Key([]byte(password), salt, int(iterations), 32, sha256.New)
}
