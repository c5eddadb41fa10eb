package domain

import "errors"

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing required field")
	ErrDuplicateRecord  = errors.New("record id already retained")
	ErrTransportClosed  = errors.New("transport closed")
	ErrSlowConsumer     = errors.New("send buffer full")
)
