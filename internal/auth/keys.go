package auth

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 10

// NewAPIKey issues a key for agentID. Only the secret is hashed and stored;
// the full key is shown to the agent once.
func NewAPIKey(agentID string) (key, secret string) {
	secret = uuid.NewString()
	return agentID + "." + secret, secret
}

func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// ParseAPIKey splits on the first '.'. Agent ids never contain one.
func ParseAPIKey(presented string) (agentID, secret string, ok bool) {
	agentID, secret, found := strings.Cut(strings.TrimSpace(presented), ".")
	if !found || agentID == "" || secret == "" {
		return "", "", false
	}
	return agentID, secret, true
}
