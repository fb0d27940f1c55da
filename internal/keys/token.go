package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// TokenPrefix distinguishes Alauda API keys from arbitrary strings.
const TokenPrefix = "alk_"

const (
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenLength   = 43
)

// GenerateToken returns a new random API key token.
func GenerateToken() (string, error) {
	var sb strings.Builder
	sb.WriteString(TokenPrefix)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < tokenLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading randomness: %w", err)
		}
		sb.WriteByte(tokenAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// Digest returns the hex SHA-256 of a raw token; only digests are stored.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// Hint returns the displayable fragment kept alongside the digest.
func Hint(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= len(TokenPrefix)+4 {
		return token
	}
	return token[:len(TokenPrefix)+4] + "…"
}

// LooksLikeToken reports whether the value carries the expected prefix.
func LooksLikeToken(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), TokenPrefix)
}
