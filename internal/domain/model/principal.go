package model

import "time"

// トークンの種類。管理者と顧客でシークレットも有効期限も別。
type PrincipalKind string

const (
	PrincipalAdmin    PrincipalKind = "admin"
	PrincipalCustomer PrincipalKind = "customer"
)

func (k PrincipalKind) Valid() bool {
	return k == PrincipalAdmin || k == PrincipalCustomer
}

// セッションの主体（トークンに埋め込む内容）
type Principal struct {
	SubjectID string
	Kind      PrincipalKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}
