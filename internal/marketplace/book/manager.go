package book

import (
	"sync"

	"github.com/google/uuid"
)

// Manager owns the per-token books, creating them lazily on first touch.
type Manager struct {
	mu    sync.RWMutex
	books map[uuid.UUID]*Book
}

func NewManager() *Manager {
	return &Manager{books: make(map[uuid.UUID]*Book)}
}

// Get returns the book for a token, creating it if needed.
func (m *Manager) Get(tokenID uuid.UUID) *Book {
	m.mu.RLock()
	b, ok := m.books[tokenID]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[tokenID]; ok {
		return b
	}
	b = New(tokenID)
	m.books[tokenID] = b
	return b
}

// All returns every live book. Used by the expiry sweep.
func (m *Manager) All() []*Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	books := make([]*Book, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, b)
	}
	return books
}
