package validator

import (
	"errors"
	"regexp"
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")
)

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// 認証まわりの入力チェック（DBは見ない）
type AuthValidator struct{}

func NewAuthValidator() *AuthValidator {
	return &AuthValidator{}
}

// コード発行の入力
func (v *AuthValidator) ValidateRequestCode(email string) error {
	if !isEmailLike(email) {
		return ErrInvalidInput
	}
	return nil
}

// コード検証の入力（6桁の数字）
func (v *AuthValidator) ValidateVerifyCode(email string, code string) error {
	if !isEmailLike(email) {
		return ErrInvalidInput
	}
	if !codePattern.MatchString(code) {
		return ErrInvalidInput
	}
	return nil
}

// 管理者ログインの入力
func (v *AuthValidator) ValidateAdminLogin(email string, password string) error {
	if !isEmailLike(email) || password == "" {
		return ErrInvalidInput
	}
	//bcryptは72バイトまで
	if len(password) > 72 {
		return ErrInvalidInput
	}
	return nil
}

func isEmailLike(email string) bool {
	if email == "" || len(email) > 255 {
		return false
	}
	return emailPattern.MatchString(email)
}
