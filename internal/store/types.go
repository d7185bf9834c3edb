package store

import (
	"time"

	"github.com/google/uuid"
)

// KeyStorage says how a user's vault key is obtained at login.
type KeyStorage string

const (
	// KeyStorageStored persists the encoded vault key on the user row.
	// Anyone with read access to storage can decrypt the user's records.
	KeyStorageStored KeyStorage = "stored"

	// KeyStorageDerived persists only the salt. The key is re-derived from
	// the master password at login and held only in the session.
	KeyStorageDerived KeyStorage = "derived"
)

// Valid reports whether k is a known key storage mode.
func (k KeyStorage) Valid() bool {
	return k == KeyStorageStored || k == KeyStorageDerived
}

// User is a vault owner. KeyEpoch counts vault key replacements and
// starts at zero.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"password_hash"`
	EncodedKey   string     `json:"encoded_key,omitempty"`
	Salt         []byte     `json:"salt"`
	KeyStorage   KeyStorage `json:"key_storage"`
	EnvelopeMode string     `json:"envelope_mode"`
	KeyEpoch     int        `json:"key_epoch"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Record is an encrypted credential owned by a user. Only Ciphertext is
// secret; the other fields are stored in the clear. KeyEpoch is the owner's
// key epoch the ciphertext was sealed under.
type Record struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	Username   string    `json:"username,omitempty"`
	Ciphertext string    `json:"ciphertext"`
	Comments   string    `json:"comments,omitempty"`
	KeyEpoch   int       `json:"key_epoch"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuditEntry represents an audit log entry.
type AuditEntry struct {
	UserID       uuid.UUID      `json:"user_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	ResourceName string         `json:"resource_name,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
