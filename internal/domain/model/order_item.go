package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細（購入時点のスナップショット。あとで商品を編集しても変わらない）
type OrderItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"not null;index" json:"order_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"name"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	ImageURL    string          `gorm:"type:text" json:"image_url"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
}
