package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// カートはセッションの顧客ごとに1つ
type CartHandler struct {
	uc *usecase.CartUsecase
}

func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

type AddCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

// item_count は数量の合計（ヘッダーのバッジ用）
type CartView struct {
	usecase.CartResponse
	ItemCount int64 `json:"item_count"`
}

func toCartView(cart usecase.CartResponse) CartView {
	v := CartView{CartResponse: cart}
	for _, it := range cart.Items {
		v.ItemCount += it.Quantity
	}
	return v
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	g := e.Group("/cart", guards.Customer...)

	g.GET("", withCustomer(h.show))
	g.POST("/items", withCustomer(h.addItem))
	g.PATCH("/items/:id", withCustomer(h.setQuantity))
	g.DELETE("/items/:id", withCustomer(h.removeItem))
}

func (h *CartHandler) show(c echo.Context, userID string) error {
	cart, err := h.uc.GetCart(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toCartView(cart))
}

// 在庫チェックは目安。確定はチェックアウト時
func (h *CartHandler) addItem(c echo.Context, userID string) error {
	var req AddCartRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	cart, err := h.uc.AddToCart(c.Request().Context(), userID, usecase.AddCartInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toCartView(cart))
}

func (h *CartHandler) setQuantity(c echo.Context, userID string) error {
	itemID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req UpdateCartItemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	cart, err := h.uc.UpdateCartItem(c.Request().Context(), userID, itemID, usecase.UpdateCartItemInput{Quantity: req.Quantity})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toCartView(cart))
}

func (h *CartHandler) removeItem(c echo.Context, userID string) error {
	itemID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	cart, err := h.uc.DeleteCartItem(c.Request().Context(), userID, itemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toCartView(cart))
}
