package models

import (
	"time"
)

// SessionToken is the broker-issued JWT a client holds between /init and
// its /bearer calls. Stateless: signature plus expiry is the whole check.
type SessionToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
