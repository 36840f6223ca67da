package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// GenerateRefreshToken returns a random Base64URL token (32 bytes) for a
// device credential bundle, plus its SHA-256 hash as hex. Only the hash is
// ever stored; the token itself is handed out once.
func GenerateRefreshToken() (token string, hashHex string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	hashHex = HashRefreshToken(token)
	return token, hashHex, nil
}

// HashRefreshToken returns SHA-256 hex of the token
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
