package handler

import (
	"net/http"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type ProductHandler struct {
	uc *usecase.ProductUsecase
}

func NewProductHandler(uc *usecase.ProductUsecase) *ProductHandler {
	return &ProductHandler{uc: uc}
}

// 顧客に見せる商品。無制限の商品は在庫数を出さない
type CatalogItem struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Unlimited   bool            `json:"unlimited"`
	Stock       *int64          `json:"stock,omitempty"`
	InStock     bool            `json:"in_stock"`
}

type CatalogPage struct {
	Items []CatalogItem `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func toCatalogItem(p model.Product) CatalogItem {
	item := CatalogItem{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		Unlimited:   p.Unlimited,
		InStock:     p.Available(1),
	}
	if !p.Unlimited {
		stock := p.Stock
		item.Stock = &stock
	}
	return item
}

func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/products", h.catalog)
	e.GET("/products/:id", h.product)
}

// GET /products?page=&limit=（limitの既定は20）
func (h *ProductHandler) catalog(c echo.Context) error {
	page, limit, ok := pageParams(c, 20)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
	}

	out, err := h.uc.ListPublicProducts(c.Request().Context(), page, limit)
	if err != nil {
		return writeError(c, err)
	}

	res := CatalogPage{Items: make([]CatalogItem, 0, len(out.Items)), Total: out.Total, Page: out.Page, Limit: out.Limit}
	for _, p := range out.Items {
		res.Items = append(res.Items, toCatalogItem(p))
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ProductHandler) product(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	p, err := h.uc.GetProductDetail(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toCatalogItem(p))
}
