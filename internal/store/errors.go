package store

import "errors"

var (
	ErrNotFound        = errors.New("product not found")
	ErrDuplicateRemote = errors.New("remote id already linked to another product")
)
