package handler

import (
	"net/http"

	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ProductCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Stock       int64           `json:"stock"`
	Unlimited   bool            `json:"unlimited"`
}

// 絶対値での在庫修正
type StockSetRequest struct {
	Stock  *int64 `json:"stock"`
	Reason string `json:"reason"`
}

// 差分での在庫修正（まとめて書き込む）
type StockDeltaRequest struct {
	Delta int64 `json:"delta"`
}

// /admin/products をまとめる
type AdminProductHandler struct {
	uc        *usecase.ProductUsecase
	mutations *usecase.MutationUsecase
}

// DI
func NewAdminProductHandler(uc *usecase.ProductUsecase, mutations *usecase.MutationUsecase) *AdminProductHandler {
	return &AdminProductHandler{uc: uc, mutations: mutations}
}

// adminを登録
func (h *AdminProductHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	admin := e.Group("/admin", guards.Admin...)

	admin.POST("/products", h.createProduct)
	admin.DELETE("/products/:id", h.deleteProduct)
	admin.PUT("/products/:id/stock", h.setStock)
	admin.PATCH("/products/:id/stock", h.adjustStock)
}

func (h *AdminProductHandler) createProduct(c echo.Context) error {
	var req ProductCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	p, err := h.uc.AdminCreateProduct(
		c.Request().Context(),
		adminID,
		usecase.AdminCreateProductInput{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			ImageURL:    req.ImageURL,
			Stock:       req.Stock,
			Unlimited:   req.Unlimited,
		},
	)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, p)
}

func (h *AdminProductHandler) deleteProduct(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.uc.AdminDeleteProduct(c.Request().Context(), adminID, id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{OK: true})
}

func (h *AdminProductHandler) setStock(c echo.Context) error {
	productID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req StockSetRequest
	if err := c.Bind(&req); err != nil || req.Stock == nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.AdminSetStock(c.Request().Context(), adminID, productID, *req.Stock, req.Reason)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// 202：表示用の値を返し、書き込みは後で行う
func (h *AdminProductHandler) adjustStock(c echo.Context) error {
	productID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req StockDeltaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.mutations.AdjustStock(c.Request().Context(), adminID, productID, req.Delta)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusAccepted, out)
}
