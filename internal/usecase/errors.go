package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	repo "storefront/internal/repository"
)

// HTTPErrorはhandlerでそのままステータスに変換する
type HTTPError struct {
	Status  int
	Message string
	// 原因（ストレージのエラーなど）。再試行の判定に使う
	Err error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d: %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 401。原因（コード違い・期限切れ・使用済み・トークン不正）は区別しない
var ErrAuthenticationFailure = &HTTPError{Status: http.StatusUnauthorized, Message: "unauthorized"}

// 在庫不足（409）。カートには触らない
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d", e.ProductID)
}

func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ie *InsufficientStockError
	ok := errors.As(err, &ie)
	return ie, ok
}

// ストレージ障害は503（再試行してよい）
func storageError(err error) error {
	return &HTTPError{Status: http.StatusServiceUnavailable, Message: "service unavailable", Err: err}
}

func badRequest(message string) error {
	return NewHTTPError(http.StatusBadRequest, message)
}

func notFound() error {
	return NewHTTPError(http.StatusNotFound, "not found")
}

// Txの開始やcommitの失敗も503にする。usecaseのエラーはそのまま
type txRunner struct {
	tx repo.TransactionManager
}

func (t txRunner) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	err := t.tx.WithinTx(ctx, fn)
	if err == nil {
		return nil
	}
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	if _, ok := AsInsufficientStock(err); ok {
		return err
	}
	return storageError(err)
}
