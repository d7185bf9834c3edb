package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names used in the bbolt database.
var (
	bucketUsers     = []byte("users")
	bucketUsernames = []byte("usernames")
	bucketRecords   = []byte("records")
	bucketAudit     = []byte("audit")
)

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a bbolt database at the given path and
// ensures all required buckets exist. The file is created with 0600 permissions.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			bucketUsers,
			bucketUsernames,
			bucketRecords,
			bucketAudit,
		} {
			if _, bErr := tx.CreateBucketIfNotExists(b); bErr != nil {
				return fmt.Errorf("create bucket %s: %w", b, bErr)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is readable.
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketUsers) == nil {
			return errors.New("users bucket missing")
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser stores a new user. It returns ErrDuplicateUsername if the
// username is taken.
func (s *BoltStore) CreateUser(_ context.Context, user *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketUsernames)
		if existing := names.Get([]byte(user.Username)); existing != nil {
			return ErrDuplicateUsername
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		idKey := []byte(user.ID.String())
		if err := tx.Bucket(bucketUsers).Put(idKey, data); err != nil {
			return err
		}
		return names.Put([]byte(user.Username), idKey)
	})
}

// GetUser retrieves a user by ID.
func (s *BoltStore) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUsers).Get([]byte(id.String()))
		if v == nil {
			return ErrUserNotFound
		}
		return json.Unmarshal(v, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username using the name index.
func (s *BoltStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	var user User
	err := s.db.View(func(tx *bolt.Tx) error {
		idBytes := tx.Bucket(bucketUsernames).Get([]byte(username))
		if idBytes == nil {
			return ErrUserNotFound
		}
		v := tx.Bucket(bucketUsers).Get(idBytes)
		if v == nil {
			return ErrUserNotFound
		}
		return json.Unmarshal(v, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser replaces an existing user. Usernames are immutable and the key
// epoch only moves through RekeyUser.
func (s *BoltStore) UpdateUser(_ context.Context, user *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		old, err := getUser(tx, user.ID)
		if err != nil {
			return err
		}
		user.KeyEpoch = old.KeyEpoch
		return putUser(tx, old, user)
	})
}

func getUser(tx *bolt.Tx, id uuid.UUID) (*User, error) {
	v := tx.Bucket(bucketUsers).Get([]byte(id.String()))
	if v == nil {
		return nil, ErrUserNotFound
	}
	var u User
	if err := json.Unmarshal(v, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func putUser(tx *bolt.Tx, old, user *User) error {
	if old.Username != user.Username {
		return errors.New("username cannot be changed")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return tx.Bucket(bucketUsers).Put([]byte(user.ID.String()), data)
}

// DeleteUser removes a user, its username index entry and all of its records.
func (s *BoltStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketUsers)
		idKey := []byte(id.String())

		v := bucket.Get(idKey)
		if v == nil {
			return ErrUserNotFound
		}

		var user User
		if err := json.Unmarshal(v, &user); err != nil {
			return fmt.Errorf("unmarshal user: %w", err)
		}

		// Collect first; deleting while iterating a cursor skips keys.
		prefix := []byte(recordPrefix(id))
		var keys [][]byte
		c := tx.Bucket(bucketRecords).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := tx.Bucket(bucketRecords).Delete(k); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketUsernames).Delete([]byte(user.Username)); err != nil {
			return err
		}
		return bucket.Delete(idKey)
	})
}

// CountUsers returns the number of users.
func (s *BoltStore) CountUsers(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketUsers).Stats().KeyN
		return nil
	})
	return n, err
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// recordKey builds the composite key: "userUUID/recordUUID".
func recordKey(userID, id uuid.UUID) []byte {
	return []byte(userID.String() + "/" + id.String())
}

// recordPrefix returns the prefix for all records of a user.
func recordPrefix(userID uuid.UUID) string {
	return userID.String() + "/"
}

// CreateRecord stores a new record under its owner.
func (s *BoltStore) CreateRecord(_ context.Context, record *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := checkKeyEpoch(tx, record); err != nil {
			return err
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return tx.Bucket(bucketRecords).Put(recordKey(record.UserID, record.ID), data)
	})
}

// GetRecord retrieves one of the user's records.
func (s *BoltStore) GetRecord(_ context.Context, userID, id uuid.UUID) (*Record, error) {
	var record Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get(recordKey(userID, id))
		if v == nil {
			return ErrRecordNotFound
		}
		return json.Unmarshal(v, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecords returns the user's records, newest first.
func (s *BoltStore) ListRecords(_ context.Context, userID uuid.UUID) ([]*Record, error) {
	return s.scanRecords(userID, func(*Record) bool { return true })
}

// SearchRecords returns records whose name contains query, case-insensitively.
func (s *BoltStore) SearchRecords(_ context.Context, userID uuid.UUID, query string) ([]*Record, error) {
	q := strings.ToLower(query)
	return s.scanRecords(userID, func(r *Record) bool {
		return strings.Contains(strings.ToLower(r.Name), q)
	})
}

func (s *BoltStore) scanRecords(userID uuid.UUID, match func(*Record) bool) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		records, err = collectRecords(tx, userID, match)
		return err
	})
	if err != nil {
		return nil, err
	}

	sortNewestFirst(records)
	return records, nil
}

func collectRecords(tx *bolt.Tx, userID uuid.UUID, match func(*Record) bool) ([]*Record, error) {
	prefix := recordPrefix(userID)
	var records []*Record
	c := tx.Bucket(bucketRecords).Cursor()
	for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
		var r Record
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, err
		}
		if match(&r) {
			records = append(records, &r)
		}
	}
	return records, nil
}

// UpdateRecord replaces an existing record. CreatedAt is preserved.
func (s *BoltStore) UpdateRecord(_ context.Context, record *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := checkKeyEpoch(tx, record); err != nil {
			return err
		}
		return putExistingRecord(tx, record)
	})
}

func checkKeyEpoch(tx *bolt.Tx, record *Record) error {
	owner, err := getUser(tx, record.UserID)
	if err != nil {
		return err
	}
	if owner.KeyEpoch != record.KeyEpoch {
		return ErrStaleKey
	}
	return nil
}

func putExistingRecord(tx *bolt.Tx, record *Record) error {
	bucket := tx.Bucket(bucketRecords)
	key := recordKey(record.UserID, record.ID)

	existing := bucket.Get(key)
	if existing == nil {
		return ErrRecordNotFound
	}

	var old Record
	if err := json.Unmarshal(existing, &old); err != nil {
		return fmt.Errorf("unmarshal existing record: %w", err)
	}
	record.CreatedAt = old.CreatedAt

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return bucket.Put(key, data)
}

// DeleteRecord removes one of the user's records.
func (s *BoltStore) DeleteRecord(_ context.Context, userID, id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := recordKey(userID, id)
		bucket := tx.Bucket(bucketRecords)
		if bucket.Get(key) == nil {
			return ErrRecordNotFound
		}
		return bucket.Delete(key)
	})
}

// CountRecords returns the number of records across all users.
func (s *BoltStore) CountRecords(_ context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketRecords).Stats().KeyN
		return nil
	})
	return n, err
}

// RekeyUser reads, re-encrypts and writes the user's records inside one
// write transaction. bbolt allows a single writer at a time, so record
// writes either commit before the records are read or see the new epoch.
func (s *BoltStore) RekeyUser(_ context.Context, user *User, rekey RekeyFunc) error {
	epoch := user.KeyEpoch + 1
	err := s.db.Update(func(tx *bolt.Tx) error {
		old, err := getUser(tx, user.ID)
		if err != nil {
			return err
		}
		if old.KeyEpoch != user.KeyEpoch {
			return ErrStaleKey
		}

		records, err := collectRecords(tx, user.ID, func(*Record) bool { return true })
		if err != nil {
			return err
		}
		moved, err := rekey(records)
		if err != nil {
			return err
		}

		for _, r := range moved {
			if r.UserID != user.ID {
				return fmt.Errorf("record %s belongs to another user", r.ID)
			}
			r.KeyEpoch = epoch
			if err := putExistingRecord(tx, r); err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
		}

		next := *user
		next.KeyEpoch = epoch
		return putUser(tx, old, &next)
	})
	if err != nil {
		return err
	}
	user.KeyEpoch = epoch
	return nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// auditKeyLayout is fixed width so keys sort in time order.
const auditKeyLayout = "2006-01-02T15:04:05.000000000Z"

// AppendAudit appends an audit entry. Entries are keyed by timestamp + UUID
// for ordering and uniqueness.
func (s *BoltStore) AppendAudit(_ context.Context, entry *AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := fmt.Sprintf("%s_%s", entry.Timestamp.UTC().Format(auditKeyLayout), uuid.New().String())
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		return tx.Bucket(bucketAudit).Put([]byte(key), data)
	})
}

// ListAudit returns the user's most recent audit entries, up to limit.
// Entries are returned newest first.
func (s *BoltStore) ListAudit(_ context.Context, userID uuid.UUID, limit int) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()

		// Keys are time-sorted lexicographically.
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(entries) >= limit {
				break
			}
			var entry AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.UserID == userID {
				entries = append(entries, &entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	return entries, nil
}

func sortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}
