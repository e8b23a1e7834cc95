package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormship-backend/pkg/config"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
)

func newSigner(t *testing.T, mutate ...func(*config.JWTConfig)) *Signer {
	t.Helper()
	cfg := config.JWTConfig{Secret: "secret", Issuer: "dormship", ExpirationMinutes: 30}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := NewSigner(cfg)
	require.NoError(t, err)
	return s
}

func TestIssueThenVerify(t *testing.T) {
	s := newSigner(t)
	now := time.Now().Truncate(time.Second)
	userID := uuid.New()

	token, err := s.Issue(now, userID, enums.UserRoleStaff)
	require.NoError(t, err)

	p, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, enums.UserRoleStaff, p.Role)
	assert.NotEmpty(t, p.TokenID)
	assert.True(t, now.Add(30*time.Minute).Equal(p.ExpiresAt))
}

func TestVerifyRejects(t *testing.T) {
	s := newSigner(t)
	now := time.Now()
	good, err := s.Issue(now, uuid.New(), enums.UserRoleStudent)
	require.NoError(t, err)
	expired, err := s.Issue(now.Add(-time.Hour), uuid.New(), enums.UserRoleAdmin)
	require.NoError(t, err)
	foreign, err := newSigner(t, func(c *config.JWTConfig) { c.Issuer = "someone-else" }).Issue(now, uuid.New(), enums.UserRoleStudent)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: enums.UserRoleStudent,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dormship",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: "JANITOR",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "dormship",
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"tampered":   good + "x",
		"expired":    expired,
		"issuer":     foreign,
		"no subject": noSubject,
		"role":       badRole,
		"garbage":    "not-a-jwt",
	} {
		_, err := s.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestIssueValidation(t *testing.T) {
	s := newSigner(t)
	_, err := s.Issue(time.Now(), uuid.New(), "")
	require.Error(t, err)
	_, err = s.Issue(time.Now(), uuid.Nil, enums.UserRoleStudent)
	require.Error(t, err)
}

func TestNewSignerReportsEveryProblem(t *testing.T) {
	_, err := NewSigner(config.JWTConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret")
	assert.Contains(t, err.Error(), "issuer")
	assert.Contains(t, err.Error(), "expiration")
}
