package models

import (
	"time"
)

// Reseller is one upstream provider account. Credentials are held only as a
// sealed blob keyed by the reseller id; plaintext never persists.
type Reseller struct {
	ID          string
	Name        string
	ContactInfo string
	Active      bool
	CreatedAt   time.Time

	// Sealed provider credentials, nil until an administrator sets them
	Credentials *SealedBlob

	// Cached provider bearer token, also sealed at rest
	Bearer *CachedBearer
}

// ProviderCredentials is the plaintext payload sealed into
// Reseller.Credentials. It only ever exists transiently in memory.
type ProviderCredentials struct {
	VoiceAPIUser     string `json:"voice_api_user"`
	VoiceAPIPassword string `json:"voice_api_password"`
	MsgAPIUser       string `json:"msg_api_user"`
	MsgAPIPassword   string `json:"msg_api_password"`
}

// SealedBlob is an AES-GCM sealed payload along with the nonce and the KDF
// salt it was sealed under.
type SealedBlob struct {
	Ciphertext []byte
	Nonce      []byte
	Salt       []byte
}

// CachedBearer is the at-rest form of a provider bearer token.
type CachedBearer struct {
	Sealed      SealedBlob
	RetrievedAt time.Time
	ExpiresAt   time.Time
}

// BearerToken is the decrypted bearer token returned to clients.
type BearerToken struct {
	Value       string
	RetrievedAt time.Time
	ExpiresAt   time.Time
}

// ExpiringWithin reports whether the cached token needs a refresh: absent
// tokens and tokens inside the threshold window both qualify.
func (b *CachedBearer) ExpiringWithin(threshold time.Duration, now time.Time) bool {
	if b == nil {
		return true
	}
	return !now.Before(b.ExpiresAt.Add(-threshold))
}
