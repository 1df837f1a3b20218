package models

import (
	"time"

	"github.com/google/uuid"
)

// Retriever status values carried in session tokens and /init responses.
const (
	RetrieverAllowed = "allowed"
	RetrieverDenied  = "denied"
)

// Assignment is the retriever-of-record entry for one (client, fax number)
// pair. At most one device may hold it at any time.
type Assignment struct {
	ClientID   uuid.UUID
	FaxNumber  string
	DeviceID   string
	AssignedAt time.Time
}

// NumberStatus is the per-number outcome of a claim evaluation.
type NumberStatus struct {
	Status string `json:"status"`
	Owner  string `json:"owner,omitempty"`
}
