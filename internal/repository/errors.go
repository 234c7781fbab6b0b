package repository

import "errors"

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
	ErrNotPending     = errors.New("transaction is not pending")
	ErrAlreadyClaimed = errors.New("reward already claimed")
	ErrDrawClosed     = errors.New("draw is not open")
)
