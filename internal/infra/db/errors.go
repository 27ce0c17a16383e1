package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

// ClassifyError は再試行してよいエラーかを分類する。
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassPermanent
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001":
			return ErrorClassSerialization
		case pgErr.Code == "40P01":
			return ErrorClassDeadlock
		case pgErr.Code == "55P03", pgErr.Code == "57P01", pgErr.Code == "53300":
			return ErrorClassTransient
		case strings.HasPrefix(pgErr.Code, "08"):
			//connection exception
			return ErrorClassTransient
		}
		return ErrorClassPermanent
	}

	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) {
		return ErrorClassTransient
	}
	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	return ClassifyError(err) != ErrorClassPermanent
}
