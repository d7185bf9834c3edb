package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jgutierrezgil/guardiapass/internal/crypto"
	"github.com/jgutierrezgil/guardiapass/internal/logging"
	"github.com/jgutierrezgil/guardiapass/internal/metrics"
	"github.com/jgutierrezgil/guardiapass/internal/store"
	"github.com/jgutierrezgil/guardiapass/internal/validation"
	"github.com/jgutierrezgil/guardiapass/internal/vault"
)

// UserService handles accounts and their vault keys.
type UserService struct {
	store      store.Store
	keyStorage store.KeyStorage
	mode       crypto.Mode
}

// NewUserService creates a new UserService. New accounts are created with
// keyStorage and mode; existing accounts keep what they were created with.
func NewUserService(st store.Store, keyStorage store.KeyStorage, mode crypto.Mode) *UserService {
	return &UserService{
		store:      st,
		keyStorage: keyStorage,
		mode:       mode,
	}
}

// RegisterParams contains the fields of a registration request.
type RegisterParams struct {
	Username string
	Password string
	Confirm  string
}

// Register creates an account. The master password must pass the password
// policy; its derived key becomes the account's vault key.
func (s *UserService) Register(ctx context.Context, p RegisterParams) (*store.User, error) {
	log := logging.Logger(ctx)

	username := strings.TrimSpace(p.Username)
	if err := validation.Username(username); err != nil {
		return nil, err
	}
	if err := validation.Confirmation(p.Password, p.Confirm); err != nil {
		return nil, err
	}
	if err := checkMasterPassword(p.Password); err != nil {
		return nil, err
	}

	passwordHash, err := crypto.HashPassword(p.Password)
	if err != nil {
		log.Error("password_hash_failed", "error", err)
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	key, salt, err := crypto.DeriveKey(p.Password, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	defer crypto.ZeroBytes(key)

	now := time.Now().UTC()
	user := &store.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		Salt:         salt,
		KeyStorage:   s.keyStorage,
		EnvelopeMode: string(s.mode),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if s.keyStorage == store.KeyStorageStored {
		user.EncodedKey = crypto.EncodeKey(key)
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return nil, err
		}
		log.Error("user_creation_failed", "username", username, "error", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Debug("user_created", "user_id", user.ID, "key_storage", user.KeyStorage)
	return user, nil
}

// Authenticate checks username and password and returns the account.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	log := logging.Logger(ctx)

	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to get user: %w", err)
		}
		log.Debug("auth_user_not_found", "username", username)
		return nil, ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(password, user.PasswordHash) {
		log.Debug("auth_password_mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	log.Debug("auth_success", "user_id", user.ID)
	return user, nil
}

// UnlockKey returns the vault key of user. Stored keys are decoded from the
// account; derived keys are re-derived from password and the account salt.
// The caller must zero the returned key.
func (s *UserService) UnlockKey(user *store.User, password string) ([]byte, error) {
	switch user.KeyStorage {
	case store.KeyStorageStored:
		key, err := crypto.DecodeKey(user.EncodedKey)
		if err != nil {
			return nil, fmt.Errorf("stored key: %w", err)
		}
		return key, nil
	case store.KeyStorageDerived:
		key, _, err := crypto.DeriveKey(password, user.Salt)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("unknown key storage %q", user.KeyStorage)
	}
}

// GetByID retrieves a user by their ID.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*store.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ChangeMasterPasswordParams contains the fields of a master password change.
type ChangeMasterPasswordParams struct {
	Current string
	New     string
	Confirm string
}

// ChangeMasterPassword replaces the master password of user id, derives a
// new vault key and re-encrypts every record under it. The records are read
// and rewritten inside the store's rekey transaction, so a record written
// concurrently is either re-encrypted with the rest or rejected with
// store.ErrStaleKey. Nothing is written unless every record re-encrypts.
// It returns the new encoded vault key and key epoch.
func (s *UserService) ChangeMasterPassword(ctx context.Context, id uuid.UUID, p ChangeMasterPasswordParams) (encodedKey string, keyEpoch int, err error) {
	log := logging.Logger(ctx)

	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return "", 0, fmt.Errorf("failed to get user: %w", err)
	}

	if !crypto.VerifyPassword(p.Current, user.PasswordHash) {
		log.Debug("master_password_change_wrong_current", "user_id", id)
		return "", 0, ErrInvalidCredentials
	}
	if err := validation.Confirmation(p.New, p.Confirm); err != nil {
		return "", 0, err
	}
	if err := checkMasterPassword(p.New); err != nil {
		return "", 0, err
	}

	mode, err := crypto.ParseMode(user.EnvelopeMode)
	if err != nil {
		return "", 0, err
	}

	oldKey, err := s.UnlockKey(user, p.Current)
	if err != nil {
		return "", 0, err
	}
	defer crypto.ZeroBytes(oldKey)

	newKey, newSalt, err := crypto.DeriveKey(p.New, nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to derive key: %w", err)
	}
	defer crypto.ZeroBytes(newKey)

	passwordHash, err := crypto.HashPassword(p.New)
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash password: %w", err)
	}

	updated := *user
	updated.PasswordHash = passwordHash
	updated.Salt = newSalt
	updated.EncodedKey = ""
	if updated.KeyStorage == store.KeyStorageStored {
		updated.EncodedKey = crypto.EncodeKey(newKey)
	}
	updated.UpdatedAt = time.Now().UTC()

	var moved int
	err = s.store.RekeyUser(ctx, &updated, func(records []*store.Record) ([]*store.Record, error) {
		out, err := vault.ReencryptAll(mode, records, oldKey, newKey)
		if err != nil {
			log.Error("master_password_reencrypt_failed", "user_id", id, "records", len(records), "error", err)
			return nil, fmt.Errorf("failed to re-encrypt records: %w", err)
		}
		moved = len(out)
		return out, nil
	})
	if err != nil {
		log.Error("master_password_update_failed", "user_id", id, "error", err)
		return "", 0, fmt.Errorf("failed to update master password: %w", err)
	}
	metrics.EnvelopeOperations.WithLabelValues("reencrypt", string(mode)).Add(float64(moved))

	log.Info("master_password_changed", "user_id", id, "records", moved, "key_epoch", updated.KeyEpoch)
	return crypto.EncodeKey(newKey), updated.KeyEpoch, nil
}

// Delete removes the account and all of its records after checking password.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID, password string) error {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if !crypto.VerifyPassword(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := s.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	logging.Logger(ctx).Info("user_deleted", "user_id", id)
	return nil
}
