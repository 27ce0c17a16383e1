package repository

import "errors"

var ErrNotFound = errors.New("not found")

// 調整すると在庫がマイナスになる
var ErrStockWouldGoNegative = errors.New("stock would go negative")
