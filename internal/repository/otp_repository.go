package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// ワンタイムコードの保存先（メールごとに1件）
type OtpRepository interface {
	// 前のコードは上書きされる
	Save(ctx context.Context, code model.OneTimeCode) error
	// 一致・未使用・期限内なら使用済みにしてtrue。
	// 不一致は試行回数を数え、maxAttemptsに達したらコードを無効にする。
	Consume(ctx context.Context, email string, codeHash string, now time.Time, maxAttempts int) (bool, error)
}
