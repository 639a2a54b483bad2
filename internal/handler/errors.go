package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/logger"
)

// ErrorResponse — стандартный формат ошибки API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleServiceError преобразует ошибку сервиса в HTTP ответ.
// Используется всеми handlers для единообразной обработки ошибок.
func HandleServiceError(c *gin.Context, err error, method string) {
	log := logger.FromContext(c.Request.Context())

	var httpStatus int
	var errorCode, message string

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		httpStatus = http.StatusNotFound
		errorCode = "not_found"
		message = "Заказ не найден"
	case errors.Is(err, domain.ErrCancelNotAllowed):
		// Конфликт: статус не допускает отмену или отмена уже идёт
		httpStatus = http.StatusConflict
		errorCode = "cancel_not_allowed"
		message = "Заказ нельзя отменить"
	case errors.Is(err, domain.ErrEmptyOrderPieces),
		errors.Is(err, domain.ErrInvalidClientID),
		errors.Is(err, domain.ErrInvalidPieceType),
		errors.Is(err, domain.ErrInvalidZipcode):
		httpStatus = http.StatusBadRequest
		errorCode = "invalid_request"
		message = "Невалидные данные запроса"
	default:
		httpStatus = http.StatusInternalServerError
		errorCode = "internal_error"
		message = "Внутренняя ошибка сервера"
		log.Error().Err(err).Str("method", method).Msg("Внутренняя ошибка")
	}

	if httpStatus != http.StatusInternalServerError {
		log.Debug().Err(err).Str("method", method).Msg("Ошибка обработки запроса")
	}

	c.JSON(httpStatus, ErrorResponse{Error: errorCode, Message: message})
}
