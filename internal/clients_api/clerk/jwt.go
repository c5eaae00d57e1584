package clerk

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Claims - the JWT payload fields we read
type Claims struct {
	Subject   string `json:"sub"`
	SessionID string `json:"sid"`
	ExpiresAt int64  `json:"exp"`
	IssuedAt  int64  `json:"iat"`
}

// ParseClaims decodes the payload without checking the signature.
// Callers confirm the session with the backend API before trusting it.
func ParseClaims(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT token format")
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWT payload: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JWT payload: %w", err)
	}
	return &claims, nil
}

// GetTokenExpirationTime - exp claim as unix seconds
func GetTokenExpirationTime(token string) (int64, error) {
	claims, err := ParseClaims(token)
	if err != nil {
		return 0, err
	}
	if claims.ExpiresAt == 0 {
		return 0, fmt.Errorf("JWT token does not contain expiration time")
	}
	return claims.ExpiresAt, nil
}
