// Package sessions keeps the live acquisition sessions of the server,
// keyed by id, and expires the ones left idle.
package sessions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/jump.report/internal/kinematics"
	"github.com/banshee-data/jump.report/internal/monitoring"
	"github.com/banshee-data/jump.report/internal/timeutil"
)

// ErrNotFound is returned for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Info describes a registered session.
type Info struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	LastUsed  time.Time         `json:"last_used"`
	Status    kinematics.Status `json:"status"`
	Pinned    bool              `json:"pinned,omitempty"`
}

type entry struct {
	session  *kinematics.Session
	created  time.Time
	lastUsed time.Time
	pinned   bool
}

// Registry owns the sessions. All methods are safe for concurrent use.
type Registry struct {
	mu          sync.Mutex
	clock       timeutil.Clock
	idleTimeout time.Duration
	sessions    map[string]*entry
}

// NewRegistry returns an empty registry. A zero idleTimeout disables expiry.
// A nil clock uses the real clock.
func NewRegistry(clock timeutil.Clock, idleTimeout time.Duration) *Registry {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Registry{
		clock:       clock,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*entry),
	}
}

// Create builds a session from cfg and registers it under a new id.
func (r *Registry) Create(cfg kinematics.SessionConfig) (string, *kinematics.Session, error) {
	id := uuid.NewString()
	if cfg.Logf == nil {
		cfg.Logf = monitoring.WithPrefix("session " + id[:8])
	}
	s, err := kinematics.NewSession(cfg)
	if err != nil {
		return "", nil, err
	}

	now := r.clock.Now()
	r.mu.Lock()
	r.sessions[id] = &entry{session: s, created: now, lastUsed: now}
	r.mu.Unlock()

	monitoring.Logf("sessions: created %s (%s baseline, %.0f fps)", id, s.Config().BaselineMode, cfg.FPS)
	return id, s, nil
}

// Get returns the session and marks it as used.
func (r *Registry) Get(id string) (*kinematics.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastUsed = r.clock.Now()
	return e.session, nil
}

// Info returns the description of one session without touching it.
func (r *Registry) Info(id string) (Info, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	var snap entry
	if ok {
		snap = *e
	}
	r.mu.Unlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	return describe(id, snap), nil
}

// Delete removes a session.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// List returns all sessions, oldest first.
func (r *Registry) List() []Info {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	entries := make([]entry, 0, len(r.sessions))
	for id, e := range r.sessions {
		ids = append(ids, id)
		entries = append(entries, *e)
	}
	r.mu.Unlock()

	out := make([]Info, len(ids))
	for i := range ids {
		out[i] = describe(ids[i], entries[i])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Pin exempts a session from idle expiry. The server pins the session the
// sample feed pumps into.
func (r *Registry) Pin(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	e.pinned = true
	return nil
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Expire drops every unpinned session idle for longer than the idle timeout and
// returns how many were removed.
func (r *Registry) Expire() int {
	if r.idleTimeout <= 0 {
		return 0
	}
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, e := range r.sessions {
		if !e.pinned && now.Sub(e.lastUsed) > r.idleTimeout {
			delete(r.sessions, id)
			n++
			monitoring.Logf("sessions: expired %s after %v idle", id, now.Sub(e.lastUsed).Round(time.Second))
		}
	}
	return n
}

// Run expires idle sessions until ctx is done. It checks at a quarter of
// the idle timeout.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := r.clock.NewTicker(r.idleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.Expire()
		}
	}
}

func describe(id string, e entry) Info {
	return Info{ID: id, CreatedAt: e.created, LastUsed: e.lastUsed, Status: e.session.Status(), Pinned: e.pinned}
}
