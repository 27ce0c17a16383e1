package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫が足りるときだけ減らす
// 条件付きUPDATE1本で判定と減算をするので、同時注文でも売り越さない。
func (r *InventoryGormRepository) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND is_active AND (unlimited OR stock >= ?)", productID, qty).
		Update("stock", gorm.Expr("CASE WHEN unlimited THEN stock ELSE stock - ? END", qty))

	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// 在庫戻し（注文削除）
func (r *InventoryGormRepository) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("CASE WHEN unlimited THEN stock ELSE stock + ? END", qty))

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 差分調整（管理画面の＋／－）
func (r *InventoryGormRepository) AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ? AND stock + ? >= 0", productID, delta).
		Update("stock", gorm.Expr("stock + ?", delta))

	if res.Error != nil {
		return 0, res.Error
	}

	var p model.Product
	err := r.db.WithContext(ctx).Select("id", "stock").First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, repo.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		return p.Stock, repo.ErrStockWouldGoNegative
	}
	return p.Stock, nil
}

// 在庫の現在値を設定（行ロックして前の値も返す）
func (r *InventoryGormRepository) SetStock(ctx context.Context, productID int64, stock int64) (int64, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		First(&p, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, repo.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	res := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Where("id = ?", productID).
		Update("stock", stock)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, repo.ErrNotFound
	}
	return p.Stock, nil
}

// 調整履歴作成
func (r *InventoryGormRepository) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	if err := r.db.WithContext(ctx).Create(&adj).Error; err != nil {
		return err
	}
	return nil
}
