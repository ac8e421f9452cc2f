package service

import "errors"

var (
	ErrInvalidRequest       = errors.New("invalid request")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrEndpointNotFound     = errors.New("webhook endpoint not found")
	ErrEndpointRevoked      = errors.New("webhook endpoint is revoked")
	ErrEventNotFound        = errors.New("event not found")
)
