package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"example.com/order-saga/pkg/jwt"
	"example.com/order-saga/pkg/logger"
)

// Ключи контекста Gin, которые заполняет AuthMiddleware.
const (
	ctxKeyClientID = "client_id"
	ctxKeyRole     = "role"
)

// TokenValidator — интерфейс для валидации токенов.
// Позволяет мокировать в тестах вместо реального верификатора.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwt.Claims, error)
}

// AuthMiddleware — middleware для проверки JWT токенов.
// Токены проверяются локально по публичному ключу: подпись, срок
// действия и issuer.
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware создаёт новый middleware для аутентификации.
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Handle возвращает Gin handler function для middleware.
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx)

		token := extractBearerToken(c)
		if token == "" {
			log.Debug().Msg("Отсутствует токен авторизации")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "Требуется авторизация",
			})
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			log.Warn().Err(err).Msg("Ошибка валидации токена")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "unauthorized",
				Message: "Невалидный токен",
			})
			return
		}

		// Сохраняем данные клиента в контекст Gin
		c.Set(ctxKeyClientID, claims.ClientID)
		c.Set(ctxKeyRole, claims.Role)

		log.Debug().
			Int64("client_id", claims.ClientID).
			Str("role", claims.Role).
			Msg("Клиент аутентифицирован")

		c.Next()
	}
}

// RequireAdmin пропускает только запросы с ролью admin.
// Используется после AuthMiddleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ctxKeyRole)
		if role != jwt.RoleAdmin {
			log := logger.FromContext(c.Request.Context())
			log.Warn().
				Interface("role", role).
				Str("path", c.FullPath()).
				Msg("Попытка доступа к административному маршруту")
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Error:   "forbidden",
				Message: "Требуется роль admin",
			})
			return
		}
		c.Next()
	}
}

// TraceID прокидывает trace_id запроса в контекст и логгер.
// Берётся из заголовка X-Trace-Id, при его отсутствии генерируется.
func TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := logger.WithTraceID(c.Request.Context(), traceID)
		l := logger.Logger().With().Str("trace_id", traceID).Logger()
		ctx = logger.WithLogger(ctx, l)

		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-Id", traceID)
		c.Next()
	}
}

// extractBearerToken извлекает токен из заголовка Authorization.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// clientFromContext возвращает client_id и признак admin из контекста Gin.
// Возвращает false и отправляет ошибку, если middleware не отработал.
func clientFromContext(c *gin.Context) (int64, bool, bool) {
	log := logger.FromContext(c.Request.Context())

	raw, exists := c.Get(ctxKeyClientID)
	if !exists {
		log.Warn().Msg("client_id не найден в контексте")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "Требуется авторизация",
		})
		return 0, false, false
	}

	clientID, ok := raw.(int64)
	if !ok {
		log.Error().
			Interface("client_id", raw).
			Msg("client_id не является int64 — баг в middleware")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Внутренняя ошибка сервера",
		})
		return 0, false, false
	}

	role, _ := c.Get(ctxKeyRole)
	return clientID, role == jwt.RoleAdmin, true
}
