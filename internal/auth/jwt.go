package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"comms-platform/internal/config"
)

// Claims is the only supported JWT claims shape for the operator surface.
// CompanyID scopes every operator action to one tenant; platform-wide
// operators carry the wildcard company "*".
type Claims struct {
	jwt.RegisteredClaims

	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
}

const RoleOperator = "operator"

// Manager issues and verifies operator access tokens (HS256).
type Manager struct {
	secret    []byte
	issuer    string
	audience  string
	accessTTL time.Duration
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	return &Manager{
		secret:    []byte(cfg.JWTSecret),
		issuer:    cfg.JWTIssuer,
		audience:  cfg.JWTAudience,
		accessTTL: cfg.AccessTokenTTL,
	}, nil
}

func (m *Manager) Issue(now time.Time, userID, companyID, role string) (string, error) {
	if userID == "" || companyID == "" || role == "" {
		return "", errors.New("auth: user, company, and role are all required")
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			Audience:  audienceOrNil(m.audience),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

func (m *Manager) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	if claims.UserID == "" {
		return Claims{}, errors.New("user_id missing")
	}
	if claims.CompanyID == "" {
		return Claims{}, errors.New("company_id missing")
	}
	if claims.Role == "" {
		return Claims{}, errors.New("role missing")
	}
	return claims, nil
}

func audienceOrNil(aud string) jwt.ClaimStrings {
	if aud == "" {
		return nil
	}
	return jwt.ClaimStrings{aud}
}
