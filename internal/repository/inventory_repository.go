package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 在庫を書き換えるのはここだけ。
type InventoryRepository interface {
	//在庫が足りるときだけ減らす（unlimitedなら常にtrue）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)
	//在庫戻し。商品が消えていればErrNotFound
	IncreaseStock(ctx context.Context, productID int64, qty int64) error
	//差分で調整して新しい在庫を返す。マイナスになるならErrStockWouldGoNegative
	AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error)
	//絶対値で設定して前の値を返す
	SetStock(ctx context.Context, productID int64, stock int64) (int64, error)

	CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error
}
