// Package calendar routes event queries to the provider client of each connected
// calendar, with a circuit breaker per calendar.
package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

// Provider reads the events of one connected calendar in [from, to).
type Provider interface {
	Events(ctx context.Context, cal model.ConnectedCalendar, from, to time.Time) ([]model.RemoteEvent, error)
}

type Mux struct {
	mu        sync.RWMutex
	providers map[model.Provider]Provider
}

func NewMux() *Mux {
	return &Mux{
		providers: make(map[model.Provider]Provider),
	}
}

func (m *Mux) Get(kind model.Provider) (Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[kind]
	if !ok {
		return nil, fmt.Errorf("calendar provider %q is not configured", kind)
	}
	return p, nil
}

func (m *Mux) Register(kind model.Provider, p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[kind] = p
}
