package models

import "errors"

var (
	ErrSessionNotFound  = errors.New("upload session not found")
	ErrItemNotFound     = errors.New("catalog item not found")
	ErrInvalidInputType = errors.New("invalid input for current step")
	ErrUnknownField     = errors.New("unknown field")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidArgument  = errors.New("invalid argument")
)
