// Package terminal keeps the live state of every POS terminal: its cart and
// its manager authorization session. Nothing here is persisted.
package terminal

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/authz"
	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/pricing"
	"github.com/google/uuid"
)

var ErrInvalidTerminalID = errors.New("invalid terminal id")

// Terminal is one till. Cart and Auth carry their own locks.
type Terminal struct {
	ID        string
	SessionID string
	OpenedAt  time.Time
	Cart      *pricing.Cart
	Auth      *authz.Session
}

// Registry creates terminals on first use. Its mutex guards only the map;
// per-terminal work happens under the terminal's own locks.
type Registry struct {
	mu        sync.RWMutex
	terminals map[string]*Terminal

	engine   *pricing.Engine
	verifier authz.CredentialVerifier
	authOpts authz.Options
	clock    domain.Clock
}

func NewRegistry(engine *pricing.Engine, verifier authz.CredentialVerifier, authOpts authz.Options) *Registry {
	clock := authOpts.Clock
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Registry{
		terminals: make(map[string]*Terminal),
		engine:    engine,
		verifier:  verifier,
		authOpts:  authOpts,
		clock:     clock,
	}
}

// Get returns the terminal with id, opening it when it does not exist yet.
func (r *Registry) Get(id string) (*Terminal, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > 64 {
		return nil, ErrInvalidTerminalID
	}

	r.mu.RLock()
	t, ok := r.terminals[id]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another request may have opened it between the locks
	if t, ok := r.terminals[id]; ok {
		return t, nil
	}
	t = &Terminal{
		ID:        id,
		SessionID: uuid.NewString(),
		OpenedAt:  r.clock.Now(),
		Cart:      pricing.NewCart(r.engine, r.clock),
		Auth:      authz.NewSession(r.verifier, r.authOpts),
	}
	r.terminals[id] = t
	return t, nil
}

// Close forgets the terminal and revokes its authorization. It reports
// whether the terminal existed.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	t, ok := r.terminals[id]
	delete(r.terminals, id)
	r.mu.Unlock()

	if ok {
		t.Auth.Clear()
	}
	return ok
}

// IDs lists open terminals in lexical order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.terminals))
	for id := range r.terminals {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
