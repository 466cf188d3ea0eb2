// Package repository exposes typed, whole-collection accessors over a
// store.Backend. Every mutation is staged on a Tx and reaches the backend only
// on Commit, in a single SetMany.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/majidshakoor42/rozanahisab/internal/domain"
	"github.com/majidshakoor42/rozanahisab/internal/store"
	"github.com/majidshakoor42/rozanahisab/internal/summary"
	"github.com/majidshakoor42/rozanahisab/internal/xid"
)

var ErrCorrupt = errors.New("corrupt collection")

type Store struct {
	backend store.Backend
	now     func() time.Time
	newID   func(prefix string) string
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func(prefix string) string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func New(backend store.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   xid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Backend() store.Backend {
	return s.backend
}

func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) Begin() *Tx {
	return &Tx{store: s, staged: make(map[string]string)}
}

// Tx stages encoded collections. Reads observe the tx's own staged writes.
// A Tx dropped without Commit writes nothing.
type Tx struct {
	store  *Store
	staged map[string]string
}

func (tx *Tx) read(ctx context.Context, key string) (string, bool, error) {
	if raw, ok := tx.staged[key]; ok {
		return raw, true, nil
	}
	raw, ok, err := tx.store.backend.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("load %s: %w", key, err)
	}
	return raw, ok, nil
}

func (tx *Tx) load(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := tx.read(ctx, key)
	if err != nil {
		return false, err
	}
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" || raw == "null" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

func (tx *Tx) stage(key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	tx.staged[key] = string(payload)
	return nil
}

func (tx *Tx) Commit(ctx context.Context) error {
	if len(tx.staged) == 0 {
		return nil
	}
	if err := tx.store.backend.SetMany(ctx, tx.staged); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx.staged = make(map[string]string)
	return nil
}

func (tx *Tx) Customers() Collection[domain.Customer] {
	return Collection[domain.Customer]{tx: tx, spec: customerSpec}
}

func (tx *Tx) Sales() Collection[domain.Sale] {
	return Collection[domain.Sale]{tx: tx, spec: saleSpec}
}

func (tx *Tx) SaleItems() Collection[domain.SaleItem] {
	return Collection[domain.SaleItem]{tx: tx, spec: saleItemSpec}
}

func (tx *Tx) Payments() Collection[domain.Payment] {
	return Collection[domain.Payment]{tx: tx, spec: paymentSpec}
}

func (tx *Tx) Summaries() SummaryRepo {
	return SummaryRepo{tx: tx}
}

func (tx *Tx) Settings() SettingsRepo {
	return SettingsRepo{tx: tx}
}

type SummaryRepo struct {
	tx *Tx
}

func (r SummaryRepo) Load(ctx context.Context) (summary.Book, error) {
	book := summary.Book{}
	if _, err := r.tx.load(ctx, store.KeyDailySummary, &book); err != nil {
		return nil, err
	}
	if book == nil {
		book = summary.Book{}
	}
	return book, nil
}

func (r SummaryRepo) Save(book summary.Book) error {
	return r.tx.stage(store.KeyDailySummary, book)
}

type SettingsRepo struct {
	tx *Tx
}

func (r SettingsRepo) Get(ctx context.Context) (domain.Settings, bool, error) {
	var settings domain.Settings
	ok, err := r.tx.load(ctx, store.KeySettings, &settings)
	if err != nil {
		return domain.Settings{}, false, err
	}
	return settings, ok, nil
}

func (r SettingsRepo) Put(settings domain.Settings) error {
	return r.tx.stage(store.KeySettings, settings)
}
