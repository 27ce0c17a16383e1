package usecase

import (
	"context"
	"net/http"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/infra/memory"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminCreateProduct(t *testing.T) {
	store := memory.NewStore()
	u := NewProductUsecase(store.Products(), store, newFakeClock())
	ctx := context.Background()

	p, err := u.AdminCreateProduct(ctx, adminID, AdminCreateProductInput{Name: " Mug ", Price: decimal.RequireFromString("12.345"), Stock: 4})
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Name)
	assert.True(t, decimal.RequireFromString("12.35").Equal(p.Price))
	assert.True(t, p.IsActive)

	got, err := u.GetProductDetail(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Stock)

	_, err = u.AdminCreateProduct(ctx, adminID, AdminCreateProductInput{Name: "x", Price: decimal.NewFromInt(-1)})
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))
	_, err = u.AdminCreateProduct(ctx, adminID, AdminCreateProductInput{Name: "x", Stock: -1})
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	require.NoError(t, u.AdminDeleteProduct(ctx, adminID, p.ID))
	_, err = u.GetProductDetail(ctx, p.ID)
	assert.Equal(t, http.StatusNotFound, httpStatus(err))

	list, err := u.ListPublicProducts(ctx, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestAdminStock_SetAndAdjustAreAudited(t *testing.T) {
	store := memory.NewStore()
	u := NewProductUsecase(store.Products(), store, newFakeClock())
	p := seedProduct(t, store, "mug", "1", 5, false)
	ctx := context.Background()

	out, err := u.AdminSetStock(ctx, adminID, p.ID, 8, "recount")
	require.NoError(t, err)
	assert.Equal(t, int64(8), out.Stock)

	out, err = u.AdminAdjustStock(ctx, adminID, p.ID, -3, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.Stock)
	assert.Equal(t, int64(5), store.Stock(p.ID))

	_, err = u.AdminAdjustStock(ctx, adminID, p.ID, -6, "")
	assert.Equal(t, http.StatusConflict, httpStatus(err))
	assert.Equal(t, int64(5), store.Stock(p.ID))

	_, err = u.AdminSetStock(ctx, adminID, 999, 1, "")
	assert.Equal(t, http.StatusNotFound, httpStatus(err))

	logs, err := store.AuditLogs().List(ctx, repo.AuditLogFilter{ResourceType: model.AuditResourceProduct, ResourceID: p.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, `{"stock":8}`, logs[0].BeforeJSON)
	assert.Equal(t, `{"stock":5}`, logs[0].AfterJSON)
	assert.Equal(t, 2, store.Calls("inventory.CreateAdjustment"))
}
