// Package bunt implements the repository on an embedded buntdb database.
// A writable buntdb transaction holds the database lock exclusively, so every
// Tx is serializable without conflict retries.
package bunt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jekabolt/grbpwr-tickets/internal/dependency"
	"github.com/tidwall/buntdb"
)

// ErrDuplicate is returned when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate key")

type Config struct {
	Path string `mapstructure:"path"`
}

// Store implements dependency.Repository on buntdb.
type Store struct {
	db *buntdb.DB
	tx *buntdb.Tx
	// mu guards tx between TxCommit/TxRollback and queries of the same handle.
	mu *sync.Mutex
}

var _ dependency.Repository = (*Store)(nil)

// New opens the database at cfg.Path, ":memory:" when empty.
func New(cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open buntdb %s: %w", path, err)
	}
	return &Store{
		db: db,
		mu: &sync.Mutex{},
	}, nil
}

func (s *Store) Close() {
	if s.tx != nil {
		return
	}
	_ = s.db.Close()
}

// Tx runs f in one writable transaction and commits when f returns nil.
func (s *Store) Tx(ctx context.Context, f func(context.Context, dependency.Repository) error) error {
	if s.InTx() {
		return f(ctx, s)
	}
	rep, err := s.TxBegin(ctx)
	if err != nil {
		return err
	}
	if err := f(ctx, rep); err != nil {
		_ = rep.TxRollback(ctx)
		return err
	}
	return rep.TxCommit(ctx)
}

func (s *Store) TxBegin(ctx context.Context) (dependency.Repository, error) {
	if s.InTx() {
		return nil, fmt.Errorf("already in transaction")
	}
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("can't begin transaction: %w", err)
	}
	return &Store{
		db: s.db,
		tx: tx,
		mu: &sync.Mutex{},
	}, nil
}

func (s *Store) TxCommit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return fmt.Errorf("not in transaction")
	}
	err := s.tx.Commit()
	s.tx = nil
	return err
}

func (s *Store) TxRollback(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx == nil {
		return fmt.Errorf("not in transaction")
	}
	err := s.tx.Rollback()
	s.tx = nil
	return err
}

// InTx returns true if the object is in transaction
func (s *Store) InTx() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx != nil
}

func (s *Store) IsErrUniqueViolation(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsErrorRepeat is always false: writable transactions never conflict.
func (s *Store) IsErrorRepeat(err error) bool {
	return false
}

func (s *Store) view(fn func(tx *buntdb.Tx) error) error {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx != nil {
		return fn(tx)
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(tx *buntdb.Tx) error) error {
	s.mu.Lock()
	tx := s.tx
	s.mu.Unlock()
	if tx != nil {
		return fn(tx)
	}
	return s.db.Update(fn)
}

func getJSON(tx *buntdb.Tx, key string, v any) error {
	val, err := tx.Get(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return sql.ErrNoRows
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), v)
}

func setJSON(tx *buntdb.Tx, key string, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	_, _, err = tx.Set(key, string(bs), nil)
	return err
}

// insertJSON stores v under key unless the key already exists.
func insertJSON(tx *buntdb.Tx, key string, v any) error {
	if _, err := tx.Get(key); err == nil {
		return fmt.Errorf("%s: %w", key, ErrDuplicate)
	} else if !errors.Is(err, buntdb.ErrNotFound) {
		return err
	}
	return setJSON(tx, key, v)
}

func deleteKey(tx *buntdb.Tx, key string) error {
	_, err := tx.Delete(key)
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

// ascendPrefix walks keys starting with prefix in key order.
func ascendPrefix(tx *buntdb.Tx, prefix string, fn func(key, val string) bool) error {
	return tx.AscendGreaterOrEqual("", prefix, func(key, val string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		return fn(key, val)
	})
}

// ascendBefore walks time-ordered keys of prefix whose timestamp is before t.
func ascendBefore(tx *buntdb.Tx, prefix string, t time.Time, fn func(key, val string) bool) error {
	bound := prefix + stamp(t)
	return ascendPrefix(tx, prefix, func(key, val string) bool {
		if key >= bound {
			return false
		}
		return fn(key, val)
	})
}

// stamp renders t so that lexical order matches chronological order.
func stamp(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}
