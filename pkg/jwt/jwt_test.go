package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeys генерирует пару RSA ключей и кладёт публичный ключ в PEM файл.
func testKeys(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "public.pem")
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	require.NoError(t, os.WriteFile(path, pemData, 0o600))

	return privateKey, path
}

// signToken подписывает токен с указанными claims.
func signToken(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(issuer string) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		ClientID: 7,
		Role:     RoleAdmin,
	}
}

func TestValidateToken_Valid(t *testing.T) {
	key, path := testKeys(t)
	verifier, err := NewVerifier(Config{PublicKeyPath: path, Issuer: "auth"})
	require.NoError(t, err)

	claims, err := verifier.ValidateToken(signToken(t, key, validClaims("auth")))

	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.ClientID)
	assert.True(t, claims.IsAdmin())
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	key, path := testKeys(t)
	verifier, err := NewVerifier(Config{PublicKeyPath: path, Issuer: "auth"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(signToken(t, key, validClaims("evil")))

	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	key, path := testKeys(t)
	verifier, err := NewVerifier(Config{PublicKeyPath: path})
	require.NoError(t, err)

	claims := validClaims("auth")
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	_, err = verifier.ValidateToken(signToken(t, key, claims))

	assert.Error(t, err)
}

func TestValidateToken_WrongSigningMethod(t *testing.T) {
	_, path := testKeys(t)
	verifier, err := NewVerifier(Config{PublicKeyPath: path})
	require.NoError(t, err)

	// HS256 токен не должен проходить даже с «валидной» подписью
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("auth")).
		SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)

	assert.Error(t, err)
}

func TestValidateToken_ForeignKey(t *testing.T) {
	_, path := testKeys(t)
	verifier, err := NewVerifier(Config{PublicKeyPath: path})
	require.NoError(t, err)

	// Токен подписан другим приватным ключом
	foreignKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(signToken(t, foreignKey, validClaims("auth")))

	assert.Error(t, err)
}

func TestNewVerifier_MissingKeyFile(t *testing.T) {
	_, err := NewVerifier(Config{PublicKeyPath: "/nonexistent/public.pem"})
	assert.Error(t, err)
}

func TestLoadPublicKey_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(path, []byte("не pem вовсе"), 0o600))

	_, err := LoadPublicKey(path)
	assert.Error(t, err)
}
