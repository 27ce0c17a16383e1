package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 商品と在庫
// Stockは常に0以上。Unlimitedがtrueなら在庫チェックの対象外（受注生産・デジタル商品）。
type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	ImageURL    string          `gorm:"type:text" json:"image_url"`
	Stock       int64           `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Unlimited   bool            `gorm:"not null;default:false" json:"unlimited"`
	IsActive    bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

// Availableはqty個売れるかどうか
func (p Product) Available(qty int64) bool {
	return p.Unlimited || p.Stock >= qty
}
