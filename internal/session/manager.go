package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind describes a change to a session's authentication state.
type EventKind int

const (
	// EventTokenSet fires after a login or register stored a token.
	EventTokenSet EventKind = iota + 1
	// EventCleared fires after logout, token expiry or a rejected token.
	EventCleared
)

func (k EventKind) String() string {
	switch k {
	case EventTokenSet:
		return "token_set"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind      EventKind
	SessionID string
	Reason    string
}

// Listener receives session events synchronously.
type Listener func(Event)

type contextKey struct{}

// WithID binds a session ID to a request context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IDFromContext returns the session ID bound by WithID.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// NewID generates a random session identifier.
func NewID() string {
	return uuid.NewString()
}

// Manager is the single owner of session state. Gates, the API client and
// the query cache all go through it instead of reading the store directly.
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	// mu serialises read-modify-write cycles within this process.
	mu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewManager wires a manager over a store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:     store,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers a listener and returns a function that removes it.
func (m *Manager) Subscribe(fn Listener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

// Token returns the stored bearer token, or an empty string when the session
// is anonymous. A JWT whose exp claim has passed is cleared and reported as absent.
func (m *Manager) Token(ctx context.Context, id string) (string, error) {
	data, err := m.load(ctx, id)
	if err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", nil
	}
	if TokenExpired(data.Token, m.now()) {
		m.logger.Info("stored token expired", zap.String("session_id", id))
		if err := m.Clear(ctx, id, "token expired"); err != nil {
			return "", err
		}
		return "", nil
	}
	return data.Token, nil
}

// BearerToken resolves the token for the session bound to ctx. It matches
// inventory.TokenFunc so the API client reads tokens through the manager.
func (m *Manager) BearerToken(ctx context.Context) (string, error) {
	id, ok := IDFromContext(ctx)
	if !ok {
		return "", nil
	}
	return m.Token(ctx, id)
}

// SetToken stores a token after a successful login.
func (m *Manager) SetToken(ctx context.Context, id, token string) error {
	if token == "" {
		return errors.New("set token: empty token")
	}
	err := m.update(ctx, id, func(d *Data) {
		d.Token = token
	})
	if err != nil {
		return err
	}
	m.notify(Event{Kind: EventTokenSet, SessionID: id})
	return nil
}

// Clear forgets the token while keeping pending flashes.
func (m *Manager) Clear(ctx context.Context, id, reason string) error {
	err := m.update(ctx, id, func(d *Data) {
		d.Token = ""
	})
	if err != nil {
		return err
	}
	m.notify(Event{Kind: EventCleared, SessionID: id, Reason: reason})
	return nil
}

// AddFlash queues a notification for the next rendered page.
func (m *Manager) AddFlash(ctx context.Context, id string, flash Flash) error {
	return m.update(ctx, id, func(d *Data) {
		d.Flashes = append(d.Flashes, flash)
	})
}

// PopFlashes returns and removes queued notifications.
func (m *Manager) PopFlashes(ctx context.Context, id string) ([]Flash, error) {
	var flashes []Flash
	err := m.update(ctx, id, func(d *Data) {
		flashes = d.Flashes
		d.Flashes = nil
	})
	return flashes, err
}

// CSRFToken returns the session's CSRF token, creating it on first use.
func (m *Manager) CSRFToken(ctx context.Context, id string) (string, error) {
	var token string
	err := m.update(ctx, id, func(d *Data) {
		if d.CSRF == "" {
			d.CSRF = uuid.NewString()
		}
		token = d.CSRF
	})
	return token, err
}

// Rotate moves the data of session id under a fresh ID and returns that ID.
// The CSRF token is reissued and id stops resolving.
func (m *Manager) Rotate(ctx context.Context, id string) (string, error) {
	newID := NewID()

	m.mu.Lock()
	var data Data
	var err error
	if id != "" {
		data, err = m.load(ctx, id)
	}
	if err == nil {
		data.CSRF = ""
		data.UpdatedAt = m.now().UTC()
		err = m.store.Save(ctx, newID, data)
	}
	if err == nil && id != "" {
		err = m.store.Delete(ctx, id)
	}
	m.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("rotate session %s: %w", id, err)
	}

	if id != "" {
		m.notify(Event{Kind: EventCleared, SessionID: id, Reason: "rotated"})
	}
	return newID, nil
}

// Destroy removes every trace of a session.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	err := m.store.Delete(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.notify(Event{Kind: EventCleared, SessionID: id, Reason: "destroyed"})
	return nil
}

func (m *Manager) load(ctx context.Context, id string) (Data, error) {
	data, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Data{}, nil
	}
	if err != nil {
		return Data{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return data, nil
}

func (m *Manager) update(ctx context.Context, id string, mutate func(*Data)) error {
	if id == "" {
		return errors.New("session id must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.load(ctx, id)
	if err != nil {
		return err
	}
	mutate(&data)
	data.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, id, data); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (m *Manager) notify(evt Event) {
	m.listenersMu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.listenersMu.RUnlock()

	m.logger.Debug("session event", zap.Stringer("kind", evt.Kind), zap.String("session_id", evt.SessionID), zap.String("reason", evt.Reason))
	for _, fn := range listeners {
		fn(evt)
	}
}
