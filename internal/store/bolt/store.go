// Package bolt provides a single-file BoltDB credential store for standalone
// deployments that run without PostgreSQL.
//
// The key layout mirrors the original client storage: accounts live in the
// registeredUsers bucket keyed by case-folded email, and the session bucket
// holds the user snapshot and accessToken marker for the single active
// session.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/carify/identity-service/internal/store"
	"go.etcd.io/bbolt"
)

var (
	accountsBucket = []byte("registeredUsers")
	sessionBucket  = []byte("session")

	sessionUserKey  = []byte("user")
	sessionTokenKey = []byte("accessToken")
)

// accountRecord is the JSON shape persisted per account. Unlike the API
// representation it carries the password hash.
type accountRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Phone        string              `json:"phone"`
	PasswordHash string              `json:"password_hash"`
	Role         domain.Role         `json:"role"`
	Permissions  []domain.Permission `json:"permissions"`
	IsVerified   bool                `json:"is_verified"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type sessionRecord struct {
	Account   domain.Account `json:"account"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store implements store.Store on a bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", store.ErrStorageUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(accountsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create buckets: %w", store.ErrStorageUnavailable, err)
	}

	return &Store{db: db}, nil
}

// ListAccounts returns all committed accounts.
func (s *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	accounts := make([]domain.Account, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(accountsBucket).ForEach(func(_, v []byte) error {
			var rec accountRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode account: %w", err)
			}
			accounts = append(accounts, rec.toAccount())
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list accounts: %w", store.ErrStorageUnavailable, err)
	}
	return accounts, nil
}

// FindAccountByEmail performs a case-insensitive lookup.
func (s *Store) FindAccountByEmail(_ context.Context, email string) (*domain.Account, error) {
	key, err := domain.NormalizeEmail(email)
	if err != nil {
		return nil, store.ErrAccountNotFound
	}

	var account *domain.Account
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(accountsBucket).Get([]byte(key))
		if data == nil {
			return store.ErrAccountNotFound
		}
		var rec accountRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode account: %w", err)
		}
		a := rec.toAccount()
		account = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// InsertAccount appends a new account. The existence check and the put run
// inside a single write transaction, so two concurrent inserts for the same
// email cannot both commit.
func (s *Store) InsertAccount(_ context.Context, account *domain.Account) error {
	key, err := domain.NormalizeEmail(account.Email)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(accountsBucket)
		if bucket.Get([]byte(key)) != nil {
			return store.ErrDuplicateEmail
		}
		data, err := json.Marshal(fromAccount(account))
		if err != nil {
			return fmt.Errorf("encode account: %w", err)
		}
		return bucket.Put([]byte(key), data)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return err
		}
		return fmt.Errorf("%w: insert account: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// SetSession overwrites the active-session slot.
func (s *Store) SetSession(_ context.Context, session *domain.Session) error {
	data, err := json.Marshal(sessionRecord{
		Account:   session.Account,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		if err := bucket.Put(sessionUserKey, data); err != nil {
			return err
		}
		return bucket.Put(sessionTokenKey, []byte(session.Token))
	})
	if err != nil {
		return fmt.Errorf("%w: set session: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// GetSession returns the active session or store.ErrNoSession.
func (s *Store) GetSession(_ context.Context) (*domain.Session, error) {
	var session *domain.Session

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		data := bucket.Get(sessionUserKey)
		token := bucket.Get(sessionTokenKey)
		if data == nil || token == nil {
			return store.ErrNoSession
		}
		var rec sessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		session = &domain.Session{
			Account:   rec.Account,
			Token:     string(token),
			CreatedAt: rec.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ClearSession erases the active-session slot.
func (s *Store) ClearSession(_ context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		if err := bucket.Delete(sessionUserKey); err != nil {
			return err
		}
		return bucket.Delete(sessionTokenKey)
	})
	if err != nil {
		return fmt.Errorf("%w: clear session: %w", store.ErrStorageUnavailable, err)
	}
	return nil
}

// Ping verifies the database file is readable.
func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(accountsBucket) == nil {
			return fmt.Errorf("%w: missing accounts bucket", store.ErrStorageUnavailable)
		}
		return nil
	})
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (r accountRecord) toAccount() domain.Account {
	return domain.Account{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Permissions:  domain.NewPermissionSet(r.Permissions...),
		IsVerified:   r.IsVerified,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromAccount(a *domain.Account) accountRecord {
	return accountRecord{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		Phone:        a.Phone,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		Permissions:  a.Permissions.List(),
		IsVerified:   a.IsVerified,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
