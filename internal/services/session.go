// Package services – Session and SessionStore
//
// A Session is the mutable view of "the conversation currently on screen"
// for one client connection: the active conversation id, its turns, login
// status and the selected model. Sessions are never shared between
// connections. SessionStore keeps them in memory keyed by connection id and
// evicts connections that stay idle longer than the configured TTL.
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/tbourn/cot-chat/internal/domain"
)

// State is the position of a connection in the send-message state machine.
type State string

const (
	StateIdle          State = "idle"
	StateSending       State = "sending"
	StateAwaitingReply State = "awaiting_reply"
)

// Session holds per-connection conversation state. All fields are guarded
// by mu; use the ConversationService and AuthService methods to mutate it.
type Session struct {
	mu sync.Mutex

	connID   string
	id       string
	messages []domain.Message
	loggedIn bool
	email    string
	model    string
	state    State

	// pending is the conversation id a send is awaiting a reply for, or "".
	pending string
	// titled is true once the active conversation has a user turn.
	titled bool
	// reveal is the id of a bot turn not yet shown with Streaming set.
	reveal uint64
}

// NewSession returns an idle session with a fresh conversation id.
func NewSession(connID, model string) *Session {
	return &Session{
		connID:   connID,
		id:       newSessionID(),
		messages: []domain.Message{},
		model:    model,
		state:    StateIdle,
	}
}

// newSessionID returns a random UUIDv4 conversation id.
func newSessionID() string { return uuid.NewString() }

// ConnID returns the connection id the session is bound to.
func (s *Session) ConnID() string { return s.connID }

// ID returns the active conversation id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Email returns the logged-in email, or "" when logged out.
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// LoggedIn reports whether the connection has authenticated.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// SessionView is an immutable snapshot of a Session for rendering.
type SessionView struct {
	ConnID    string           `json:"conn_id"`
	SessionID string           `json:"session_id"`
	State     State            `json:"state"`
	LoggedIn  bool             `json:"logged_in"`
	Email     string           `json:"email,omitempty"`
	Model     string           `json:"model"`
	Messages  []domain.Message `json:"messages"`
}

// View returns a snapshot of the session. A bot turn produced by the last
// send is flagged Streaming exactly once; later reads see it cleared.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() SessionView {
	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	if s.reveal != 0 {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].ID == s.reveal {
				msgs[i].Streaming = true
				break
			}
		}
		s.reveal = 0
	}
	return SessionView{
		ConnID:    s.connID,
		SessionID: s.id,
		State:     s.state,
		LoggedIn:  s.loggedIn,
		Email:     s.email,
		Model:     s.model,
		Messages:  msgs,
	}
}

// replaceLocked swaps the active conversation. Switching to another
// conversation returns to idle; a send still in flight keeps its own copy of
// the old id. Reloading the conversation a reply is pending for keeps
// awaiting it.
func (s *Session) replaceLocked(id string, msgs []domain.Message) {
	s.id = id
	s.messages = msgs
	if s.pending != "" && s.pending == id {
		s.state = StateAwaitingReply
	} else {
		s.state = StateIdle
	}
	s.reveal = 0
	s.titled = false
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			s.titled = true
			break
		}
	}
}

// SessionStore maps connection ids to their Session.
type SessionStore struct {
	mu           sync.Mutex
	c            *cache.Cache
	defaultModel string

	// logins holds the email each connection was last issued a login token
	// for. It outlives session eviction so an evicted connection can be
	// restored, and logout clears it so older login tokens stop working.
	logins *cache.Cache
}

// NewSessionStore returns a store that evicts sessions idle for longer than
// idleTTL. New sessions start with defaultModel selected.
func NewSessionStore(idleTTL time.Duration, defaultModel string) *SessionStore {
	cleanup := idleTTL / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}
	return &SessionStore{
		c:            cache.New(idleTTL, cleanup),
		defaultModel: defaultModel,
		logins:       cache.New(cache.NoExpiration, cleanup),
	}
}

// Open creates a session for a new connection.
func (st *SessionStore) Open() *Session {
	s := NewSession(uuid.NewString(), st.defaultModel)
	st.c.Set(s.connID, s, cache.DefaultExpiration)
	return s
}

// Get returns the session of connID and refreshes its idle timer.
func (st *SessionStore) Get(connID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	x, found := st.c.Get(connID)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	st.c.Set(connID, s, cache.DefaultExpiration)
	return s, true
}

// RememberLogin records that connID holds a login for email until the
// token carrying it expires. An empty email forgets the login.
func (st *SessionStore) RememberLogin(connID, email string, until time.Time) {
	ttl := time.Until(until)
	if email == "" || ttl <= 0 {
		st.logins.Delete(connID)
		return
	}
	st.logins.Set(connID, email, ttl)
}

// Resume returns the session of connID, recreating an empty one when it was
// evicted. email restores the login carried by the caller's token, but only
// when it is still the login remembered for the connection.
func (st *SessionStore) Resume(connID, email string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if x, found := st.c.Get(connID); found {
		s := x.(*Session)
		st.c.Set(connID, s, cache.DefaultExpiration)
		return s
	}
	s := NewSession(connID, st.defaultModel)
	if held, ok := st.logins.Get(connID); ok && email != "" && held.(string) == email {
		s.loggedIn = true
		s.email = email
	}
	st.c.Set(connID, s, cache.DefaultExpiration)
	return s
}

// Drop forgets a connection.
func (st *SessionStore) Drop(connID string) {
	st.c.Delete(connID)
}

// Len returns the number of live connections.
func (st *SessionStore) Len() int {
	return st.c.ItemCount()
}
