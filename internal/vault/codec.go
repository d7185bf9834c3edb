// Package vault binds a user's vault key to credential records. It seals
// credential secrets into store records and opens them again, and migrates
// record ciphertexts between keys.
package vault

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/store"
)

// CredentialInput is a credential as entered by a user.
type CredentialInput struct {
	Name     string
	URL      string
	Username string
	Password string
	Comments string
}

// Credential is a record with its secret opened.
//
// When DecryptError is set Password is empty and must not be presented as
// the stored value.
type Credential struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Name         string
	URL          string
	Username     string
	Password     string
	Comments     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DecryptError bool
}

// Codec seals and opens the records of one user with that user's envelope.
type Codec struct {
	userID uuid.UUID
	env    crypto.Envelope
	now    func() time.Time
}

// NewCodec returns a codec for userID's records using env.
func NewCodec(userID uuid.UUID, env crypto.Envelope) *Codec {
	return &Codec{
		userID: userID,
		env:    env,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Mode returns the envelope mode the codec seals with.
func (c *Codec) Mode() crypto.Mode {
	return c.env.Mode()
}

// Seal encrypts in.Password and returns a new record ready to be stored.
func (c *Codec) Seal(in CredentialInput) (*store.Record, error) {
	if err := checkInput(in); err != nil {
		return nil, err
	}

	ct, err := c.env.Encrypt(in.Password)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	now := c.now()
	return &store.Record{
		ID:         uuid.New(),
		UserID:     c.userID,
		Name:       in.Name,
		URL:        in.URL,
		Username:   in.Username,
		Ciphertext: ct,
		Comments:   in.Comments,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Reseal replaces the fields of rec with in, encrypting the password anew.
// rec is modified only when Reseal succeeds.
func (c *Codec) Reseal(rec *store.Record, in CredentialInput) error {
	if rec.UserID != c.userID {
		return ErrWrongOwner
	}
	if err := checkInput(in); err != nil {
		return err
	}

	ct, err := c.env.Encrypt(in.Password)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	rec.Name = in.Name
	rec.URL = in.URL
	rec.Username = in.Username
	rec.Ciphertext = ct
	rec.Comments = in.Comments
	rec.UpdatedAt = c.now()
	return nil
}

// Open decrypts rec. A wrong key or corrupt ciphertext yields an error
// matching crypto.ErrDecryption.
func (c *Codec) Open(rec *store.Record) (*Credential, error) {
	if rec.UserID != c.userID {
		return nil, ErrWrongOwner
	}

	password, err := c.env.Decrypt(rec.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}

	cred := credentialFrom(rec)
	cred.Password = password
	return cred, nil
}

// Reveal is Open for display: a record that cannot be decrypted is
// returned with DecryptError set instead of failing.
func (c *Codec) Reveal(rec *store.Record) *Credential {
	cred, err := c.Open(rec)
	if err != nil {
		cred = credentialFrom(rec)
		cred.DecryptError = true
	}
	return cred
}

// RevealAll reveals every record, preserving order.
func (c *Codec) RevealAll(records []*store.Record) []*Credential {
	creds := make([]*Credential, 0, len(records))
	for _, r := range records {
		creds = append(creds, c.Reveal(r))
	}
	return creds
}

func credentialFrom(rec *store.Record) *Credential {
	return &Credential{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Name:      rec.Name,
		URL:       rec.URL,
		Username:  rec.Username,
		Comments:  rec.Comments,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func checkInput(in CredentialInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCredential)
	}
	if strings.TrimSpace(in.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidCredential)
	}
	if in.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidCredential)
	}
	return nil
}
