package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Property invariant: PropertyID is present on every token; staff act on one property at a time.
type Claims struct {
	jwt.RegisteredClaims

	UserID     string    `json:"user_id"`
	PropertyID string    `json:"property_id"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
