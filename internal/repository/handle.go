package repository

import (
	"errors"
	"sync"

	"slippi-tracker/internal/rowstore"
)

var (
	ErrNotInitialized = errors.New("database not initialized")
	ErrNotFound       = errors.New("record not found")
)

// Handle holds the store of the currently open database. The database is
// opened when the tracker is initialized and dropped on hard reset, so
// repositories resolve it per call.
type Handle struct {
	mu    sync.RWMutex
	store *rowstore.Store
}

func NewHandle() *Handle {
	return &Handle{}
}

func (h *Handle) Attach(store *rowstore.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store = store
}

// Detach forgets the store and returns it so the caller can close it.
func (h *Handle) Detach() *rowstore.Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.store
	h.store = nil
	return s
}

func (h *Handle) Store() (*rowstore.Store, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.store == nil {
		return nil, ErrNotInitialized
	}
	return h.store, nil
}

func (h *Handle) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.store != nil
}
