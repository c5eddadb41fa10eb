package domain

import (
	"context"
	"time"
)

// RetentionStore holds accepted records until they expire.
//
// Put is never called twice with the same record id; doing so is a programming
// error. TakeExpired must remove and return, atomically with respect to Put,
// every record whose age at now is at least lifetime, oldest first. When it
// fails part way, records it already removed are returned alongside the error.
type RetentionStore interface {
	Put(ctx context.Context, rec Record) error
	TakeExpired(ctx context.Context, now time.Time, lifetime time.Duration) ([]Record, error)
	Len(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}
