package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	tx          repo.TransactionManager
	clock       Clock
}

// DI
func NewProductUsecase(productRepo repo.ProductRepository, tx repo.TransactionManager, clock Clock) *ProductUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ProductUsecase{productRepo: productRepo, tx: txRunner{tx}, clock: clock}
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, page int, limit int) (ProductListOutput, error) {
	if err := validatePage(page, limit); err != nil {
		return ProductListOutput{}, err
	}

	items, total, err := u.productRepo.List(ctx, page, limit)
	if err != nil {
		return ProductListOutput{}, storageError(err)
	}
	if items == nil {
		items = []model.Product{}
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, badRequest("invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, notFound()
	}
	if err != nil {
		return model.Product{}, storageError(err)
	}

	if !p.IsActive {
		return model.Product{}, notFound()
	}
	return p, nil
}

type AdminCreateProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Stock       int64           `json:"stock"`
	Unlimited   bool            `json:"unlimited"`
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminID string, in AdminCreateProductInput) (model.Product, error) {
	if adminID == "" {
		return model.Product{}, ErrAuthenticationFailure
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 255 {
		return model.Product{}, badRequest("name required")
	}
	if in.Price.IsNegative() {
		return model.Product{}, badRequest("price must be >= 0")
	}
	if in.Stock < 0 {
		return model.Product{}, badRequest("stock must be >= 0")
	}

	now := u.clock.Now()
	p, err := u.productRepo.Create(ctx, model.Product{
		Name:        name,
		Description: in.Description,
		Price:       in.Price.Round(2),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Stock:       in.Stock,
		Unlimited:   in.Unlimited,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return model.Product{}, storageError(err)
	}
	return p, nil
}

// 論理削除。この商品を含む注文を後で削除すると在庫は戻らず、報告に載る
func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminID string, productID int64) error {
	if adminID == "" {
		return ErrAuthenticationFailure
	}
	if productID <= 0 {
		return badRequest("invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return notFound()
	}
	if err != nil {
		return storageError(err)
	}
	return nil
}

type StockOutput struct {
	ProductID int64 `json:"product_id"`
	Stock     int64 `json:"stock"`
}

// 在庫を絶対値で設定する（棚卸しの修正）
func (u *ProductUsecase) AdminSetStock(ctx context.Context, adminID string, productID int64, newStock int64, reason string) (StockOutput, error) {
	if adminID == "" {
		return StockOutput{}, ErrAuthenticationFailure
	}
	if productID <= 0 {
		return StockOutput{}, badRequest("invalid product id")
	}
	if newStock < 0 {
		return StockOutput{}, badRequest("stock must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "set"
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Inventory().SetStock(ctx, productID, newStock)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound()
		}
		if err != nil {
			return storageError(err)
		}
		return u.record(ctx, r, adminID, productID, before, newStock, reason)
	})
	if err != nil {
		return StockOutput{}, err
	}
	return StockOutput{ProductID: productID, Stock: newStock}, nil
}

// 在庫を差分で調整して、調整後の値を返す
func (u *ProductUsecase) AdminAdjustStock(ctx context.Context, adminID string, productID int64, delta int64, reason string) (StockOutput, error) {
	if adminID == "" {
		return StockOutput{}, ErrAuthenticationFailure
	}
	if productID <= 0 {
		return StockOutput{}, badRequest("invalid product id")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "adjust"
	}

	var after int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		after, err = r.Inventory().AdjustStock(ctx, productID, delta)
		if errors.Is(err, repo.ErrNotFound) {
			return notFound()
		}
		if errors.Is(err, repo.ErrStockWouldGoNegative) {
			return &HTTPError{Status: http.StatusConflict, Message: "stock would go negative", Err: err}
		}
		if err != nil {
			return storageError(err)
		}
		if delta == 0 {
			return nil
		}
		return u.record(ctx, r, adminID, productID, after-delta, after, reason)
	})
	if err != nil {
		return StockOutput{}, err
	}
	return StockOutput{ProductID: productID, Stock: after}, nil
}

// 履歴（差分）と監査ログを残す
func (u *ProductUsecase) record(ctx context.Context, r repo.TxRepos, adminID string, productID int64, before int64, after int64, reason string) error {
	now := u.clock.Now()

	if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
		ProductID: productID,
		AdminID:   adminID,
		Delta:     after - before,
		Reason:    reason,
		CreatedAt: now,
	}); err != nil {
		return storageError(err)
	}

	//「誰が」「何を」「どの対象に」「どう変えたか」を残す
	if err := r.AuditLogs().Create(ctx, model.AuditLog{
		ActorAdminID: adminID,
		Action:       model.AuditActionUpdateStock,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, before),
		AfterJSON:    fmt.Sprintf(`{"stock":%d}`, after),
		CreatedAt:    now,
	}); err != nil {
		return storageError(err)
	}
	return nil
}
