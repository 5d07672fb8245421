package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Contact is where a user receives e-mail.
type Contact struct {
	Email string
	Name  string
}

// ErrNoContact means the directory has no deliverable address for the user.
var ErrNoContact = errors.New("notify: no contact for user")

type Directory interface {
	Lookup(ctx context.Context, userID string) (Contact, error)
}

// MemoryDirectory is a static Directory used in memory mode.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{contacts: make(map[string]Contact)}
}

func (d *MemoryDirectory) Put(userID string, c Contact) {
	d.mu.Lock()
	d.contacts[userID] = c
	d.mu.Unlock()
}

func (d *MemoryDirectory) Lookup(ctx context.Context, userID string) (Contact, error) {
	d.mu.RLock()
	c, ok := d.contacts[userID]
	d.mu.RUnlock()
	if !ok || strings.TrimSpace(c.Email) == "" {
		return Contact{}, ErrNoContact
	}
	return c, nil
}
