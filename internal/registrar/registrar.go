package registrar

import (
	"errors"
	"sync"
	"time"

	"CallCoordinator/internal/entity/user"
)

var (
	ErrDuplicateConnection = errors.New("registrar: connection already registered")
	ErrNotFound            = errors.New("registrar: connection not found")
)

// Conn is the outbound side of a live connection.
// Send must not block; it reports false when the message was dropped.
type Conn interface {
	ID() string
	Send(msg []byte) bool
	Close() error
}

type Binding struct {
	Handle      string
	Identity    user.Identity
	Conn        Conn
	ConnectedAt time.Time
}

// Departure describes an unregistered connection.
// NextHandle is the user's remaining current connection, empty when the user has none left.
type Departure struct {
	Binding
	NextHandle string
}

type Registrar struct {
	mu       sync.RWMutex
	byHandle map[string]Binding
	byUser   map[string][]string // user -> handles, most recent last
	now      func() time.Time
}

func New() *Registrar {
	return &Registrar{
		byHandle: make(map[string]Binding),
		byUser:   make(map[string][]string),
		now:      time.Now,
	}
}

// Register binds handle to identity. first is true when the user had no other connection.
func (r *Registrar) Register(handle string, identity user.Identity, conn Conn) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHandle[handle]; ok {
		return false, ErrDuplicateConnection
	}

	r.byHandle[handle] = Binding{
		Handle:      handle,
		Identity:    identity,
		Conn:        conn,
		ConnectedAt: r.now(),
	}
	first = len(r.byUser[identity.UserID]) == 0
	r.byUser[identity.UserID] = append(r.byUser[identity.UserID], handle)
	return first, nil
}

func (r *Registrar) Lookup(handle string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byHandle[handle]
	if !ok {
		return Binding{}, ErrNotFound
	}
	return b, nil
}

// Live reports whether handle is still registered.
func (r *Registrar) Live(handle string) bool {
	r.mu.RLock()
	_, ok := r.byHandle[handle]
	r.mu.RUnlock()
	return ok
}

// Unregister removes handle. Removing an unknown handle is a no-op and reports false.
func (r *Registrar) Unregister(handle string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byHandle[handle]
	if !ok {
		return Departure{}, false
	}
	delete(r.byHandle, handle)

	userID := b.Identity.UserID
	handles := r.byUser[userID]
	rest := handles[:0]
	for _, h := range handles {
		if h != handle {
			rest = append(rest, h)
		}
	}

	d := Departure{Binding: b}
	if len(rest) == 0 {
		delete(r.byUser, userID)
	} else {
		r.byUser[userID] = rest
		d.NextHandle = rest[len(rest)-1]
	}
	return d, true
}

// CurrentHandle returns the user's most recently registered connection.
func (r *Registrar) CurrentHandle(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.byUser[userID]
	if len(handles) == 0 {
		return "", false
	}
	return handles[len(handles)-1], true
}

func (r *Registrar) ListByRole(roles ...user.Role) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0)
	for _, b := range r.byHandle {
		for _, role := range roles {
			if b.Identity.Role == role {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

// Online returns one binding per connected user, pointing at the user's current handle.
func (r *Registrar) Online(roles ...user.Role) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.byUser))
	for _, handles := range r.byUser {
		b := r.byHandle[handles[len(handles)-1]]
		if len(roles) == 0 {
			out = append(out, b)
			continue
		}
		for _, role := range roles {
			if b.Identity.Role == role {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

func (r *Registrar) All() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, len(r.byHandle))
	for _, b := range r.byHandle {
		out = append(out, b)
	}
	return out
}

func (r *Registrar) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}
