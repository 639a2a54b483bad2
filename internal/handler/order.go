package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/order-saga/internal/domain"
	"example.com/order-saga/pkg/logger"
)

// OrderHandler — обработчик заказов.
type OrderHandler struct {
	orderService OrderService
}

// NewOrderHandler создаёт новый обработчик заказов.
func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// === Request/Response DTOs ===

// CreateOrderRequest — запрос на создание заказа.
type CreateOrderRequest struct {
	Pieces  []string `json:"pieces" binding:"required,min=1"`
	City    string   `json:"city"`
	Street  string   `json:"street"`
	Zipcode string   `json:"zipcode" binding:"required"`
}

// CreateOrderResponse — ответ на создание заказа.
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	Approved    bool   `json:"approved"`
}

// CancelOrderResponse — ответ на отмену заказа.
type CancelOrderResponse struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
}

// AdminCancelResponse — ответ на административную отмену.
type AdminCancelResponse struct {
	OrderID   int64 `json:"order_id"`
	Cancelled bool  `json:"cancelled"`
}

// PieceResponse — позиция заказа в ответе.
type PieceResponse struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Price string `json:"price"`
}

// OrderResponse — информация о заказе в ответе.
type OrderResponse struct {
	ID          int64           `json:"id"`
	ClientID    int64           `json:"client_id"`
	Pieces      []PieceResponse `json:"pieces"`
	TotalAmount string          `json:"total_amount"`
	City        string          `json:"city"`
	Street      string          `json:"street"`
	Zipcode     string          `json:"zipcode"`
	Status      string          `json:"status"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

// ListOrdersResponse — ответ на запрос списка заказов.
type ListOrdersResponse struct {
	Orders     []OrderResponse    `json:"orders"`
	Pagination PaginationResponse `json:"pagination"`
}

// PaginationResponse — информация о пагинации.
type PaginationResponse struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
}

// === Handlers ===

// CreateOrder создаёт новый заказ.
// POST /order/create
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	clientID, _, ok := clientFromContext(c)
	if !ok {
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("Невалидный запрос на создание заказа")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Невалидные данные запроса",
		})
		return
	}

	pieces := make([]domain.Piece, len(req.Pieces))
	for i, t := range req.Pieces {
		pieces[i] = domain.Piece{Type: domain.PieceType(t)}
	}

	order := &domain.Order{
		ClientID: clientID,
		Pieces:   pieces,
		City:     req.City,
		Street:   req.Street,
		Zipcode:  req.Zipcode,
	}

	approved, err := h.orderService.CreateOrder(ctx, order)
	if err != nil {
		HandleServiceError(c, err, "CreateOrder")
		return
	}

	log.Info().
		Int64("order_id", order.ID).
		Int64("client_id", clientID).
		Bool("approved", approved).
		Msg("Заказ создан")

	c.JSON(http.StatusCreated, CreateOrderResponse{
		OrderID:     order.ID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount.String(),
		Approved:    approved,
	})
}

// CancelOrder отменяет заказ.
// POST /order/:id/cancel
// Клиентская отмена асинхронная: ответ приходит сразу после захвата
// блокировки, дальше отмену ведут события брокера. Администратор
// получает решение синхронно.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	clientID, admin, ok := clientFromContext(c)
	if !ok {
		return
	}

	if admin {
		cancelled, err := h.orderService.CancelOrderAdmin(ctx, orderID)
		if err != nil {
			HandleServiceError(c, err, "CancelOrderAdmin")
			return
		}

		log.Info().
			Int64("order_id", orderID).
			Bool("cancelled", cancelled).
			Msg("Административная отмена завершена")

		c.JSON(http.StatusOK, AdminCancelResponse{
			OrderID:   orderID,
			Cancelled: cancelled,
		})
		return
	}

	if err := h.orderService.CancelOrder(ctx, orderID, clientID); err != nil {
		HandleServiceError(c, err, "CancelOrder")
		return
	}

	log.Info().
		Int64("order_id", orderID).
		Int64("client_id", clientID).
		Msg("Отмена заказа запущена")

	c.JSON(http.StatusAccepted, CancelOrderResponse{
		OrderID: orderID,
		Status:  string(domain.StatusCancelling),
	})
}

// GetOrder возвращает заказ по ID.
// GET /order/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx := c.Request.Context()

	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	clientID, admin, ok := clientFromContext(c)
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(ctx, orderID, clientID, admin)
	if err != nil {
		HandleServiceError(c, err, "GetOrder")
		return
	}

	c.JSON(http.StatusOK, orderToResponse(order))
}

// ListOrders возвращает список заказов текущего клиента.
// GET /order?page=1&page_size=20
func (h *OrderHandler) ListOrders(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	clientID, _, ok := clientFromContext(c)
	if !ok {
		return
	}

	page := 1
	pageSize := 20

	if pageStr := c.Query("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if pageSizeStr := c.Query("page_size"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}

	orders, total, err := h.orderService.ListOrders(ctx, clientID, (page-1)*pageSize, pageSize)
	if err != nil {
		HandleServiceError(c, err, "ListOrders")
		return
	}

	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = orderToResponse(o)
	}

	log.Debug().
		Int64("client_id", clientID).
		Int("page", page).
		Int("count", len(out)).
		Msg("Список заказов получен")

	c.JSON(http.StatusOK, ListOrdersResponse{
		Orders: out,
		Pagination: PaginationResponse{
			CurrentPage: page,
			PageSize:    pageSize,
			TotalItems:  total,
		},
	})
}

// SagaHistory возвращает историю переходов саг по заказам.
// GET /order/saga/history — только для admin.
func (h *OrderHandler) SagaHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": h.orderService.SagaHistory()})
}

// Health — проверка живости сервиса.
// GET /order/health
func (h *OrderHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// === Helper functions ===

// orderIDParam извлекает ID заказа из path-параметра.
func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "ID заказа должен быть положительным числом",
		})
		return 0, false
	}
	return orderID, true
}

// orderToResponse преобразует domain.Order в OrderResponse.
func orderToResponse(o *domain.Order) OrderResponse {
	pieces := make([]PieceResponse, len(o.Pieces))
	for i, p := range o.Pieces {
		pieces[i] = PieceResponse{
			ID:    p.ID,
			Type:  string(p.Type),
			Price: p.Price.String(),
		}
	}

	return OrderResponse{
		ID:          o.ID,
		ClientID:    o.ClientID,
		Pieces:      pieces,
		TotalAmount: o.TotalAmount.String(),
		City:        o.City,
		Street:      o.Street,
		Zipcode:     o.Zipcode,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt.Unix(),
		UpdatedAt:   o.UpdatedAt.Unix(),
	}
}
