package database

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store selected with a memory:// URI. It is
// meant for local runs and tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int
	tokens   map[string]*Token
	payments map[string]*Payment
	logs     []LogEntry
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]*Token),
		payments: make(map[string]*Payment),
	}
}

func (s *MemoryStore) id() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

func (s *MemoryStore) ConsumePayment(_ context.Context, transactionID string, now time.Time) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[transactionID]
	if !ok || p.Used != nil {
		return nil, ErrNotFound
	}
	used := now
	p.Used = &used
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ConsumeToken(_ context.Context, token string, now time.Time) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok || !t.Usable(now) {
		return nil, ErrNotFound
	}
	t.Credits--
	t.Updated = now
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) FindPaymentByTransactionID(_ context.Context, transactionID string) (*Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) FindToken(_ context.Context, token string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, p *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.TransactionID]; exists {
		return storeErr("create payment", errDuplicate(p.TransactionID))
	}
	if p.Date.IsZero() {
		p.Date = time.Now().UTC()
	}
	p.ID = s.id()
	cp := *p
	s.payments[p.TransactionID] = &cp
	return nil
}

func (s *MemoryStore) CreateToken(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Token]; exists {
		return storeErr("create token", errDuplicate(t.Token))
	}
	now := time.Now().UTC()
	if t.Created.IsZero() {
		t.Created = now
	}
	if t.Updated.IsZero() {
		t.Updated = now
	}
	t.ID = s.id()
	cp := *t
	s.tokens[t.Token] = &cp
	return nil
}

func (s *MemoryStore) InsertLog(_ context.Context, entry *LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *entry)
	return nil
}

// Logs returns a copy of the audit entries written so far
func (s *MemoryStore) Logs() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.logs...)
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Ping(context.Context) error    { return nil }
func (s *MemoryStore) Close(context.Context) error   { return nil }

type errDuplicate string

func (e errDuplicate) Error() string {
	return "duplicate key " + strconv.Quote(string(e))
}
