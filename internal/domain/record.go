package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record is one accepted payload held for the retention lifetime.
type Record struct {
	ID        uuid.UUID `json:"id"`
	SenderID  uuid.UUID `json:"senderId"`
	ArrivedAt time.Time `json:"arrivedAt"`
	Payload   Payload   `json:"payload"`
}

// Expired reports whether the record's age at now has reached lifetime.
func (r Record) Expired(now time.Time, lifetime time.Duration) bool {
	return now.Sub(r.ArrivedAt) >= lifetime
}
