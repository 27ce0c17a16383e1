package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusPaid           PaymentStatus = "paid"
	PaymentStatusProofPending   PaymentStatus = "proof_pending"
	PaymentStatusProofSubmitted PaymentStatus = "proof_submitted"
	PaymentStatusVerified       PaymentStatus = "verified"
	PaymentStatusRejected       PaymentStatus = "rejected"
)

type PaymentMethod string

const (
	PaymentMethodCOD          PaymentMethod = "COD"
	PaymentMethodBankTransfer PaymentMethod = "BankTransfer"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodBankTransfer
}

// 注文
// UserIDは退会でNULLになる（管理用に注文は残す）。
// 振込証明は列として持ち、ProofUploadedAtがnilなら未提出。
type Order struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        *string         `gorm:"type:uuid;index" json:"user_id"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	PaymentStatus PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`

	ProofTransactionID *string             `gorm:"type:varchar(255)" json:"-"`
	ProofMethod        *string             `gorm:"type:varchar(50)" json:"-"`
	ProofScreenshotURL *string             `gorm:"type:text" json:"-"`
	ProofFeePaid       decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"-"`
	ProofUploadedAt    *time.Time          `json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 振込証明
type PaymentProof struct {
	TransactionID string          `json:"transaction_id"`
	Method        string          `json:"method"`
	ScreenshotURL string          `json:"screenshot_url"`
	FeePaid       decimal.Decimal `json:"fee_paid"`
	UploadedAt    time.Time       `json:"uploaded_at"`
}

// Proofは提出済みの証明を返す（未提出ならnil）
func (o Order) Proof() *PaymentProof {
	if o.ProofUploadedAt == nil {
		return nil
	}
	p := &PaymentProof{UploadedAt: *o.ProofUploadedAt}
	if o.ProofTransactionID != nil {
		p.TransactionID = *o.ProofTransactionID
	}
	if o.ProofMethod != nil {
		p.Method = *o.ProofMethod
	}
	if o.ProofScreenshotURL != nil {
		p.ScreenshotURL = *o.ProofScreenshotURL
	}
	if o.ProofFeePaid.Valid {
		p.FeePaid = o.ProofFeePaid.Decimal
	}
	return p
}

// AttachProofは証明を列に展開する
func (o *Order) AttachProof(p PaymentProof) {
	txID, method, url := p.TransactionID, p.Method, p.ScreenshotURL
	at := p.UploadedAt
	o.ProofTransactionID = &txID
	o.ProofMethod = &method
	o.ProofScreenshotURL = &url
	o.ProofFeePaid = decimal.NewNullDecimal(p.FeePaid)
	o.ProofUploadedAt = &at
}
