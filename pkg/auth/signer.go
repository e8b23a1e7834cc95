// Package auth issues and verifies the HS256 access tokens carried by API
// callers. The token subject is the user id; the role travels as a private
// claim.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

const leeway = 30 * time.Second

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid access token")

type claims struct {
	Role enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the caller a verified token speaks for.
type Principal struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	TokenID   string
	ExpiresAt time.Time
}

type Signer struct {
	key    []byte
	issuer string
	ttl    time.Duration
	parser *jwt.Parser
}

func NewSigner(cfg config.JWTConfig) (*Signer, error) {
	var err error
	if strings.TrimSpace(cfg.Secret) == "" {
		err = multierr.Append(err, errors.New("jwt secret is required"))
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		err = multierr.Append(err, errors.New("jwt issuer is required"))
	}
	if cfg.ExpirationMinutes <= 0 {
		err = multierr.Append(err, errors.New("jwt expiration must be positive"))
	}
	if err != nil {
		return nil, err
	}
	return &Signer{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    time.Duration(cfg.ExpirationMinutes) * time.Minute,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}, nil
}

// Issue mints a token for userID valid from now for the configured TTL.
func (s *Signer) Issue(now time.Time, userID uuid.UUID, role enums.UserRole) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("auth: user id is required")
	}
	if !role.IsValid() {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry and resolves the caller.
func (s *Signer) Verify(raw string) (Principal, error) {
	var c claims
	if _, err := s.parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.key, nil }); err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil || userID == uuid.Nil {
		return Principal{}, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, c.Subject)
	}
	if !c.Role.IsValid() {
		return Principal{}, fmt.Errorf("%w: role %q", ErrInvalidToken, c.Role)
	}
	return Principal{
		UserID:    userID,
		Role:      c.Role,
		TokenID:   c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
