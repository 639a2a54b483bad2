// Package jwt предоставляет верификацию JWT токенов на основе RS256.
// Сервис заказов не выпускает токены: подписывает их внешний auth-сервис,
// здесь нужен только публичный ключ для проверки подписи.
package jwt

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin — роль, дающая право отменять чужие заказы.
const RoleAdmin = "admin"

// Claims содержит данные JWT токена.
type Claims struct {
	jwt.RegisteredClaims
	ClientID int64  `json:"client_id"`      // ID клиента
	Role     string `json:"role,omitempty"` // Роль пользователя (опционально)
}

// IsAdmin возвращает true для административных токенов.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Verifier проверяет подписи JWT токенов публичным ключом.
type Verifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// Config содержит параметры для создания Verifier.
type Config struct {
	PublicKeyPath string // Путь к публичному ключу (обязательно)
	Issuer        string // Ожидаемый издатель токена (опционально)
}

// NewVerifier создаёт верификатор JWT токенов.
func NewVerifier(cfg Config) (*Verifier, error) {
	publicKey, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки публичного ключа: %w", err)
	}

	return &Verifier{
		publicKey: publicKey,
		issuer:    cfg.Issuer,
	}, nil
}

// ValidateToken проверяет токен и возвращает claims.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка валидации токена: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("невалидные claims токена")
	}

	return claims, nil
}

// LoadPublicKey загружает RSA публичный ключ из PEM файла.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла ключа: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("ошибка декодирования PEM блока")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга публичного ключа: %w", err)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ключ не является RSA публичным ключом")
	}

	return rsaKey, nil
}
