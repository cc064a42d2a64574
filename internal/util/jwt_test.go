package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signHS256(t *testing.T, secret string, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims(sub string) Claims {
	return Claims{
		Email: "ada@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestValidateJWT_HMAC(t *testing.T) {
	token := signHS256(t, "secret", validClaims("u1"))

	claims, err := ValidateJWT(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "ada@example.com", claims.Email)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)
}

func TestValidateJWT_RejectsExpiredAndIncomplete(t *testing.T) {
	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err := ValidateJWT(signHS256(t, "secret", expired), "secret")
	assert.Error(t, err)

	noExpiry := validClaims("u1")
	noExpiry.ExpiresAt = nil
	_, err = ValidateJWT(signHS256(t, "secret", noExpiry), "secret")
	assert.Error(t, err)

	_, err = ValidateJWT(signHS256(t, "secret", validClaims("")), "secret")
	assert.ErrorIs(t, err, ErrMissingSubject)

	_, err = ValidateJWT("not-a-token", "secret")
	assert.Error(t, err)
}

func TestValidateJWT_ECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, validClaims("u2")).SignedString(priv)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, pemKey)
	require.NoError(t, err)
	assert.Equal(t, "u2", claims.Subject)

	_, err = ValidateJWT(token, "not a pem key")
	assert.Error(t, err)
}
