package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is one registered fax-user/device pairing. Revocation is done by
// deactivating, never deleting.
type Client struct {
	ID         uuid.UUID
	FaxUser    string
	AuthToken  string
	ResellerID string
	FaxNumbers []string
	Active     bool
	CreatedAt  time.Time
	LastSeenAt *time.Time
}

// NormalizeFaxUser lowercases a fax user and strips any extension prefix, so
// "100@clinic.12345.service" and "Clinic.12345.Service" address the same
// client record.
func NormalizeFaxUser(faxUser string) string {
	faxUser = strings.ToLower(strings.TrimSpace(faxUser))
	if at := strings.IndexByte(faxUser, '@'); at >= 0 {
		faxUser = faxUser[at+1:]
	}
	return faxUser
}

// ResellerIDFromFaxUser extracts the reseller segment from a normalized fax
// user of the form "domain.<reseller>.service".
func ResellerIDFromFaxUser(faxUser string) (string, bool) {
	parts := strings.Split(NormalizeFaxUser(faxUser), ".")
	if len(parts) < 3 {
		return "", false
	}
	id := parts[len(parts)-2]
	if id == "" {
		return "", false
	}
	return id, true
}

// HasNumber reports whether number is in the client's authorized set.
func (c *Client) HasNumber(number string) bool {
	for _, n := range c.FaxNumbers {
		if n == number {
			return true
		}
	}
	return false
}
