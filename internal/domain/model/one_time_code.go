package model

import "time"

// ワンタイムコード（メールごとに有効なものは最大1つ）
// コードそのものは保存せず、ハッシュだけ持つ。
type OneTimeCode struct {
	Email     string
	CodeHash  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Consumed  bool
	Attempts  int
}

// Liveは未使用かつ期限内かどうか
func (c OneTimeCode) Live(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}
