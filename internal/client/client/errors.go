package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("no active qr code")
	ErrBadResponse  = errors.New("malformed server response")
)
