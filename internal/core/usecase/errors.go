package usecase

import "errors"

var errUnexpectedCount = errors.New("reranker returned a different number of items")
