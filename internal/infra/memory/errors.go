package memory

import "errors"

// unique制約違反に相当
var errDuplicate = errors.New("duplicate key")
