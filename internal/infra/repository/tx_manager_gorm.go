package repository

import (
	"context"

	"storefront/internal/infra/db"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	carts      repo.CartRepository
	cartItems  repo.CartItemRepository
	inventory  repo.InventoryRepository
	products   repo.ProductRepository
	auditLogs  repo.AuditLogRepository
	users      repo.UserRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txReposGorm) Carts() repo.CartRepository           { return r.carts }
func (r *txReposGorm) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *txReposGorm) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *txReposGorm) Products() repo.ProductRepository     { return r.products }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }
func (r *txReposGorm) Users() repo.UserRepository           { return r.users }

type TxManagerGorm struct {
	db    *gorm.DB
	retry db.RetryOptions
}

func NewTxManagerGorm(gdb *gorm.DB, retry db.RetryOptions) *TxManagerGorm {
	return &TxManagerGorm{db: gdb, retry: retry}
}

// シリアライズ失敗・デッドロックなどはトランザクションごとやり直す
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return db.WithRetry(ctx, tm.retry, func() error {
		return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			//repoはtxを持ったDBで作り直す
			carts := NewCartGormRepository(tx)
			r := &txReposGorm{
				orders:     NewOrderGormRepository(tx),
				orderItems: NewOrderItemGormRepository(tx),
				carts:      carts,
				cartItems:  carts,
				inventory:  NewInventoryGormRepository(tx),
				products:   NewProductGormRepository(tx),
				auditLogs:  NewAuditLogGormRepository(tx),
				users:      NewUserGormRepository(tx),
			}
			return fn(r)
		})
	})
}
