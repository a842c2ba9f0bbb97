package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"resident-intake/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenType    = errors.New("token_type mismatch")
	ErrMissingClaim = errors.New("required claim missing")
	ErrBadProperty  = errors.New("property_id malformed")
	ErrRoleRefused  = errors.New("role not allowed")
)

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

// RolePolicy decides which roles may hold tokens. A nil func allows every role.
type RolePolicy struct {
	// Known reports whether an access token may carry role.
	Known func(role string) bool
	// AccessOnly marks roles without a refresh flow, such as service integrations.
	AccessOnly func(role string) bool
}

func (p RolePolicy) known(role string) bool      { return p.Known == nil || p.Known(role) }
func (p RolePolicy) accessOnly(role string) bool { return p.AccessOnly != nil && p.AccessOnly(role) }

type Option func(*Manager)

func WithRolePolicy(p RolePolicy) Option {
	return func(m *Manager) { m.roles = p }
}

// Manager issues and verifies staff tokens. Every token is bound to exactly
// one property.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	roles      RolePolicy
}

func NewManager(cfg config.AuthConfig, opts ...Option) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	m := &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// IssueAccess returns a single access token. Integrations use it since they
// have no refresh flow; ttl <= 0 means the configured access TTL.
func (m *Manager) IssueAccess(now time.Time, userID, propertyID, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.accessTTL
	}
	if err := m.checkIdentity(userID, propertyID, role, TokenTypeAccess); err != nil {
		return "", err
	}
	return m.sign(m.claims(now, TokenTypeAccess, userID, propertyID, role, ttl))
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IssuePair returns an access and refresh token for an interactive staff
// login. Access-only roles are refused.
func (m *Manager) IssuePair(now time.Time, userID, propertyID, role string) (TokenPair, error) {
	if err := m.checkIdentity(userID, propertyID, role, TokenTypeAccess); err != nil {
		return TokenPair{}, err
	}
	if m.roles.accessOnly(role) {
		return TokenPair{}, fmt.Errorf("%w: %s has no refresh flow", ErrRoleRefused, role)
	}

	access, err := m.sign(m.claims(now, TokenTypeAccess, userID, propertyID, role, m.accessTTL))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(m.claims(now, TokenTypeRefresh, userID, propertyID, "", m.refreshTTL))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks signature, registered claims against now, and the identity
// rules that issuing enforces: one well-formed property per token, a known
// role on access tokens and no role on refresh tokens.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	var claims Claims

	// Time-based claims are checked by m.validate against the caller's clock.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, err
	}

	if err := m.validate(claims.RegisteredClaims, now); err != nil {
		return Claims{}, err
	}
	if claims.TokenType != expected {
		return Claims{}, ErrTokenType
	}
	if err := m.checkIdentity(claims.UserID, claims.PropertyID, claims.Role, expected); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (m *Manager) validate(rc jwt.RegisteredClaims, now time.Time) error {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	return jwt.NewValidator(opts...).Validate(rc)
}

func (m *Manager) checkIdentity(userID, propertyID, role string, tt TokenType) error {
	if userID == "" {
		return fmt.Errorf("%w: user_id", ErrMissingClaim)
	}
	if propertyID == "" {
		return fmt.Errorf("%w: property_id", ErrMissingClaim)
	}
	if strings.TrimSpace(propertyID) != propertyID || strings.ContainsAny(propertyID, " \t\r\n,") {
		return ErrBadProperty
	}

	switch tt {
	case TokenTypeAccess:
		if role == "" {
			return fmt.Errorf("%w: role", ErrMissingClaim)
		}
		if !m.roles.known(role) {
			return fmt.Errorf("%w: %s", ErrRoleRefused, role)
		}
	case TokenTypeRefresh:
		if role != "" {
			return fmt.Errorf("%w: refresh tokens carry no role", ErrRoleRefused)
		}
	}
	return nil
}

func (m *Manager) claims(now time.Time, tt TokenType, userID, propertyID, role string, ttl time.Duration) Claims {
	rc := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	if m.audience != "" {
		rc.Audience = jwt.ClaimStrings{m.audience}
	}
	return Claims{
		RegisteredClaims: rc,
		UserID:           userID,
		PropertyID:       propertyID,
		Role:             role,
		TokenType:        tt,
	}
}

func (m *Manager) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}
