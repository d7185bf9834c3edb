package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/metrics"
	"github.com/jgutierrezgil/guardiapass/internal/session"
	"github.com/jgutierrezgil/guardiapass/internal/store"
	"github.com/jgutierrezgil/guardiapass/internal/validation"
	"github.com/jgutierrezgil/guardiapass/internal/vault"
)

// RecordService handles credential records. Secrets are sealed and opened
// with the vault key carried by the caller's session.
type RecordService struct {
	store store.Store
}

// NewRecordService creates a new RecordService.
func NewRecordService(st store.Store) *RecordService {
	return &RecordService{store: st}
}

// RecordPatch holds the fields of an update. Nil fields are left unchanged.
type RecordPatch struct {
	Name     *string
	URL      *string
	Username *string
	Password *string
	Comments *string
}

func (s *RecordService) codec(sess *session.Session) (*vault.Codec, error) {
	env, err := sess.Envelope()
	if err != nil {
		return nil, err
	}
	return vault.NewCodec(sess.UserID, env), nil
}

// Create seals in and stores it as a new record of the session user.
func (s *RecordService) Create(ctx context.Context, sess *session.Session, in vault.CredentialInput) (*vault.Credential, error) {
	if err := validation.Record(in.Name, in.URL, in.Username, in.Comments); err != nil {
		return nil, err
	}

	codec, err := s.codec(sess)
	if err != nil {
		return nil, err
	}

	rec, err := codec.Seal(in)
	if err != nil {
		return nil, err
	}
	rec.KeyEpoch = sess.KeyEpoch
	metrics.EnvelopeOperations.WithLabelValues("encrypt", string(codec.Mode())).Inc()

	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	logging.Logger(ctx).Debug("record_created", "record_id", rec.ID, "user_id", sess.UserID)
	return s.reveal(ctx, codec, rec), nil
}

// Get returns one record of the session user with its secret opened.
func (s *RecordService) Get(ctx context.Context, sess *session.Session, id uuid.UUID) (*vault.Credential, error) {
	rec, err := s.store.GetRecord(ctx, sess.UserID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	codec, err := s.codec(sess)
	if err != nil {
		return nil, err
	}
	return s.reveal(ctx, codec, rec), nil
}

// List returns the session user's records, newest first. A non-empty query
// keeps only records whose name contains it, ignoring case.
func (s *RecordService) List(ctx context.Context, sess *session.Session, query string) ([]*vault.Credential, error) {
	var (
		records []*store.Record
		err     error
	)
	if query != "" {
		records, err = s.store.SearchRecords(ctx, sess.UserID, query)
	} else {
		records, err = s.store.ListRecords(ctx, sess.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	codec, err := s.codec(sess)
	if err != nil {
		return nil, err
	}

	creds := codec.RevealAll(records)
	s.observe(ctx, codec, creds...)
	return creds, nil
}

// Update applies patch to a record of the session user. The secret is
// re-encrypted only when the patch carries a new password.
func (s *RecordService) Update(ctx context.Context, sess *session.Session, id uuid.UUID, patch RecordPatch) (*vault.Credential, error) {
	rec, err := s.store.GetRecord(ctx, sess.UserID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if rec.KeyEpoch != sess.KeyEpoch {
		return nil, store.ErrStaleKey
	}

	in := vault.CredentialInput{
		Name:     rec.Name,
		URL:      rec.URL,
		Username: rec.Username,
		Comments: rec.Comments,
	}
	applyPatch(&in, patch)

	if err := validation.Record(in.Name, in.URL, in.Username, in.Comments); err != nil {
		return nil, err
	}

	codec, err := s.codec(sess)
	if err != nil {
		return nil, err
	}

	if patch.Password != nil {
		in.Password = *patch.Password
		if err := codec.Reseal(rec, in); err != nil {
			return nil, err
		}
		metrics.EnvelopeOperations.WithLabelValues("encrypt", string(codec.Mode())).Inc()
	} else {
		rec.Name = in.Name
		rec.URL = in.URL
		rec.Username = in.Username
		rec.Comments = in.Comments
		rec.UpdatedAt = time.Now().UTC()
	}

	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	logging.Logger(ctx).Debug("record_updated", "record_id", rec.ID, "user_id", sess.UserID, "password_changed", patch.Password != nil)
	return s.reveal(ctx, codec, rec), nil
}

// Delete removes a record of userID and returns it.
func (s *RecordService) Delete(ctx context.Context, userID, id uuid.UUID) (*store.Record, error) {
	rec, err := s.store.GetRecord(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if err := s.store.DeleteRecord(ctx, userID, id); err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}
	return rec, nil
}

func (s *RecordService) reveal(ctx context.Context, codec *vault.Codec, rec *store.Record) *vault.Credential {
	cred := codec.Reveal(rec)
	s.observe(ctx, codec, cred)
	return cred
}

func (s *RecordService) observe(ctx context.Context, codec *vault.Codec, creds ...*vault.Credential) {
	mode := string(codec.Mode())
	metrics.EnvelopeOperations.WithLabelValues("decrypt", mode).Add(float64(len(creds)))
	for _, c := range creds {
		if c.DecryptError {
			metrics.EnvelopeFailures.WithLabelValues(mode).Inc()
			logging.Logger(ctx).Warn("record_decrypt_failed", "record_id", c.ID, "mode", mode)
		}
	}
}

func applyPatch(in *vault.CredentialInput, p RecordPatch) {
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.URL != nil {
		in.URL = *p.URL
	}
	if p.Username != nil {
		in.Username = *p.Username
	}
	if p.Comments != nil {
		in.Comments = *p.Comments
	}
}
