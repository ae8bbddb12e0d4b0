package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	errTokenRequired = errors.New("token required")
	errInvalidToken  = errors.New("invalid token")
)

// Service validates operator bearer tokens configured in basic_config.api_tokens.
// With no tokens configured every request is allowed.
type Service struct {
	digests    [][sha256.Size]byte
	headerName string
}

func NewService(tokens []string) *Service {
	s := &Service{headerName: "Authorization"}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		s.digests = append(s.digests, sha256.Sum256([]byte(token)))
	}
	return s
}

// Enabled reports whether any token is configured.
func (s *Service) Enabled() bool {
	return s != nil && len(s.digests) > 0
}

// ValidateToken returns the short id of a configured token.
func (s *Service) ValidateToken(authToken string) (string, error) {
	if authToken == "" {
		return "", errTokenRequired
	}
	digest := sha256.Sum256([]byte(authToken))
	match := 0
	for i := range s.digests {
		match |= subtle.ConstantTimeCompare(digest[:], s.digests[i][:])
	}
	if match != 1 {
		return "", errInvalidToken
	}
	return hex.EncodeToString(digest[:4]), nil
}

// GenerateToken mints a random token suitable for api_tokens.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
