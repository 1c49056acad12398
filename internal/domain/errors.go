package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOffline         = errors.New("offline")
	ErrConflict        = errors.New("conflict")
)
