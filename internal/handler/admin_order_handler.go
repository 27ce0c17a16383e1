package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc        *usecase.AdminOrderUsecase
	mutations *usecase.MutationUsecase
	audit     *usecase.AuditUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase, mutations *usecase.MutationUsecase, audit *usecase.AuditUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc, mutations: mutations, audit: audit}
}

// status / payment_status のどちらか（両方でもよい）
type OrderUpdateRequest struct {
	Status        *string `json:"status"`
	PaymentStatus *string `json:"payment_status"`
}

func (r OrderUpdateRequest) input() usecase.AdminUpdateOrderInput {
	return usecase.AdminUpdateOrderInput{Status: r.Status, PaymentStatus: r.PaymentStatus}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, guards Guards) {
	admin := e.Group("/admin", guards.Admin...)

	admin.GET("/orders", h.list)
	admin.GET("/orders/:id", h.detail)
	admin.PUT("/orders/:id", h.update)
	admin.PATCH("/orders/:id", h.coalescedUpdate)
	//"all" は :id より先に登録する
	admin.DELETE("/orders/all", h.deleteAll)
	admin.DELETE("/orders/:id", h.delete)

	admin.GET("/mutations", h.mutationsList)
	admin.GET("/audit-logs", h.auditLogs)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page, limit, ok := pageParams(c, 50)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
	}

	out, err := h.uc.List(c.Request().Context(), repository.AdminOrderListFilter{
		Page:          page,
		Limit:         limit,
		Status:        c.QueryParam("status"),
		PaymentStatus: c.QueryParam("payment_status"),
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) detail(c echo.Context) error {
	orderID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Get(c.Request().Context(), orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) update(c echo.Context) error {
	orderID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req OrderUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// 操作した管理者IDを取得（監査ログ用）
	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	out, err := h.uc.Update(c.Request().Context(), adminID, orderID, req.input())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) coalescedUpdate(c echo.Context) error {
	orderID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req OrderUpdateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	outs, err := h.mutations.SetOrderField(c.Request().Context(), adminID, orderID, req.input())
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{"mutations": outs})
}

func (h *AdminOrderHandler) delete(c echo.Context) error {
	orderID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	report, err := h.uc.DeleteOrder(c.Request().Context(), adminID, orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *AdminOrderHandler) deleteAll(c echo.Context) error {
	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	report, err := h.uc.DeleteAllOrders(c.Request().Context(), adminID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// 自分の未確定・失敗した編集
func (h *AdminOrderHandler) mutationsList(c echo.Context) error {
	adminID, ok := getAdminIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"mutations": h.mutations.Pending(adminID)})
}

func (h *AdminOrderHandler) auditLogs(c echo.Context) error {
	f := repository.AuditLogFilter{
		ActorAdminID: c.QueryParam("actor_admin_id"),
		ResourceType: model.AuditResourceType(c.QueryParam("resource_type")),
	}

	if v := c.QueryParam("resource_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid resource_id"})
		}
		f.ResourceID = id
	}
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		f.Limit = l
	}
	if v := c.QueryParam("offset"); v != "" {
		o, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
		}
		f.Offset = o
	}

	logs, err := h.audit.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": logs})
}
