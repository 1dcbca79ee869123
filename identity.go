package tally

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AnonymousPrefix marks actor ids that were generated for clients without a
// signed-in user.
const AnonymousPrefix = "anon-"

// anonCookieMaxAge keeps the anonymous id for as long as the browser keeps
// the cookie.
const anonCookieMaxAge = 10 * 365 * 24 * 60 * 60

// newUUID is swapped in tests.
var newUUID = uuid.NewRandom

// IDStore is client-side storage for a pseudo-anonymous actor id. The same
// client must get the same id back until its storage is cleared.
type IDStore interface {
	// Load returns the stored id, if any.
	Load() (id string, ok bool)
	// Save persists id.
	Save(id string) error
}

// ResolveActor returns userID when the caller is signed in. Otherwise it
// returns the anonymous id kept in ids, generating and saving one on first
// use.
//
// The returned id is never empty. If a random id cannot be generated, a
// synthetic one is used and the error wraps ErrIdentityUnavailable; if the id
// cannot be saved it is still returned along with the save error. Either way
// the caller can go on recording with the id.
func ResolveActor(userID string, ids IDStore) (string, error) {
	if id := strings.TrimSpace(userID); id != "" {
		return id, nil
	}
	if ids != nil {
		if id, ok := ids.Load(); ok && id != "" {
			return id, nil
		}
	}

	var resolveErr error
	id, err := newAnonymousID()
	if err != nil {
		id = fallbackAnonymousID()
		resolveErr = fmt.Errorf("%w: %w", ErrIdentityUnavailable, err)
	}

	if ids != nil {
		if err := ids.Save(id); err != nil {
			return id, fmt.Errorf("tally: save anonymous id: %w", err)
		}
	}
	return id, resolveErr
}

func newAnonymousID() (string, error) {
	u, err := newUUID()
	if err != nil {
		return "", err
	}
	return AnonymousPrefix + u.String(), nil
}

func fallbackAnonymousID() string {
	return fmt.Sprintf("%s%x-%08x", AnonymousPrefix, time.Now().UnixNano(), rand.Uint32())
}

// MemoryIDStore keeps an anonymous id in memory. It suits CLIs and tests.
type MemoryIDStore struct {
	mu sync.Mutex
	id string
}

// Load returns the stored id.
func (m *MemoryIDStore) Load() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != ""
}

// Save stores id.
func (m *MemoryIDStore) Save(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

// CookieIDStore keeps an anonymous id in a long-lived HTTP cookie. It is
// bound to a single request and must be saved before the response header is
// written.
type CookieIDStore struct {
	w    http.ResponseWriter
	r    *http.Request
	name string
	id   string
}

// NewCookieIDStore returns an IDStore reading from r and writing to w.
func NewCookieIDStore(w http.ResponseWriter, r *http.Request, name string) *CookieIDStore {
	return &CookieIDStore{w: w, r: r, name: name}
}

// Load returns the id from the request cookie, or one saved earlier in this
// request.
func (c *CookieIDStore) Load() (string, bool) {
	if c.id != "" {
		return c.id, true
	}
	ck, err := c.r.Cookie(c.name)
	if err != nil || !strings.HasPrefix(ck.Value, AnonymousPrefix) {
		return "", false
	}
	c.id = ck.Value
	return c.id, true
}

// Save sets the cookie on the response.
func (c *CookieIDStore) Save(id string) error {
	c.id = id
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.name,
		Value:    id,
		Path:     "/",
		MaxAge:   anonCookieMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
