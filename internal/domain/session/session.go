// Package session owns open register carts. Every change to a cart goes
// through Store.Update so that mutations of the same cart serialize.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/pos-pricing/internal/domain/cart"
	"github.com/xenking/pos-pricing/internal/domain/discount"
	"github.com/xenking/pos-pricing/internal/domain/promotion"
)

var (
	ErrNotFound         = errors.New("cart session not found")
	ErrCheckedOut       = errors.New("cart already checked out")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrUnknownPromotion = errors.New("promotion not available in this session")
	ErrNotBundle        = errors.New("promotion is not a bundle")
	ErrUnknownDiscount  = errors.New("discount not available in this session")
)

// Session is one open cart together with the promotion and discount
// snapshots taken when it was opened.
type Session struct {
	ID         string                 `json:"id"`
	Cart       cart.Cart              `json:"cart"`
	Promotions []promotion.Definition `json:"promotions"`
	Discounts  []discount.Definition  `json:"discounts"`
	CheckedOut bool                   `json:"checked_out,omitempty"`
	OpenedAt   time.Time              `json:"opened_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Store keeps sessions. Update runs fn on a private copy and stores the
// result only when fn succeeds; implementations may call fn more than once.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(s *Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	mu sync.Mutex
	s  Session
}

// MemoryStore keeps sessions in process memory with one mutex per session.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) entry(id string) (*memoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	return e, ok
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return errors.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = &memoryEntry{s: *s}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.s
	return &s, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(s *Session) error) (*Session, error) {
	e, ok := m.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Delete may have raced the lookup.
	if cur, ok := m.entry(id); !ok || cur != e {
		return nil, ErrNotFound
	}

	next := e.s
	if err := fn(&next); err != nil {
		return nil, err
	}
	e.s = next
	return &next, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}
