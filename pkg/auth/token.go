// Package auth mints and verifies the HS256 access tokens handed to admins.
// The token jti doubles as the Redis session id, so a revoked session
// invalidates its token before exp.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/config"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	// ErrTokenExpired wraps jwt.ErrTokenExpired so callers need not import jwt.
	ErrTokenExpired = jwt.ErrTokenExpired

	errMissingSecret = errors.New("jwt secret is required")
)

// AccessTokenPayload is what the login flow knows when it mints a token.
type AccessTokenPayload struct {
	AdminID uuid.UUID
	Role    enums.Role
	JTI     string
}

// AccessTokenClaims is the decoded token body.
type AccessTokenClaims struct {
	AdminID uuid.UUID  `json:"admin_id"`
	Role    enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks in jwt.Parser.
func (c AccessTokenClaims) Validate() error {
	switch {
	case c.AdminID == uuid.Nil:
		return errors.New("token has no admin id")
	case c.Subject != c.AdminID.String():
		return errors.New("token subject does not match admin id")
	case !c.Role.IsValid():
		return fmt.Errorf("token role %q is unknown", c.Role)
	}
	return nil
}

// MintAccessToken signs a token valid for cfg.ExpirationMinutes from now.
// A blank JTI gets a random UUID.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.AdminID == uuid.Nil:
		return "", errors.New("admin id is required")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("invalid role %q", payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute

	signed, err := jwt.NewWithClaims(signingMethod, AccessTokenClaims{
		AdminID: payload.AdminID,
		Role:    payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   payload.AdminID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithExpirationRequired(), jwt.WithLeeway(clockSkew))
}

// ParseAccessTokenAllowExpired verifies the signature but skips the time
// checks. Refresh uses it to find the session of an expired token.
func ParseAccessTokenAllowExpired(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	return parse(cfg, raw, jwt.WithoutClaimsValidation())
}

func parse(cfg config.JWTConfig, raw string, opts ...jwt.ParserOption) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errMissingSecret
	}
	opts = append(opts,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	claims := &AccessTokenClaims{}
	if _, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
