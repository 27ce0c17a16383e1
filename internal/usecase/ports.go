package usecase

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"storefront/internal/domain/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// 現在時刻（テストで差し替える）
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ID生成
type IDGenerator interface {
	NewID() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// トークン発行の約束（infra/tokenが実装）
type TokenIssuer interface {
	Issue(p model.Principal) (string, time.Time, error)
}

// パスワードのハッシュ化と比較
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hashed string, plain string) bool
}

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hashed string, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// ワンタイムコード生成
type CodeGenerator func() (string, error)

// 6桁（先頭0あり）
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type NotificationKind string

const (
	NotificationOTP            NotificationKind = "otp_requested"
	NotificationOrderPlaced    NotificationKind = "order_placed"
	NotificationOrderDelivered NotificationKind = "order_delivered"
)

// 通知の中身（メール本文は下流で組み立てる）
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Email   string           `json:"email"`
	Code    string           `json:"code,omitempty"`
	OrderID int64            `json:"order_id,omitempty"`
	At      time.Time        `json:"at"`
}

// 通知の送信。失敗してもレスポンスは止めない
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
