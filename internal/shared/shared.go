// Package shared holds the mutable state that the client manager, the
// server session and the router all need to see: the configured user
// table, the symbol allow-list, the session-id sequence, the
// username<->session binding and the set of sessions pending teardown
// (spec §3 "Shared state").
//
// Every mutating method on Store assumes it is called only from the
// single engine goroutine that owns the proxy's business logic (see
// internal/scheduler) — the same "effectively single-threaded" posture
// the proxy's core event loop relies on, just achieved by Go convention
// (one goroutine, no locks) rather than by a language-level guarantee.
// Connection goroutines never touch a Store directly; they describe
// what happened as an event and hand it to the engine.
package shared

import "regexp"

// User is one entry of the configured user table (config.hpp's User,
// carried through client-facing authentication and party injection).
type User struct {
	Component  string
	Username   string
	Password   string
	StrategyID uint32
	// Accounts is carried through from configuration but not otherwise
	// interpreted by this proxy (see SPEC_FULL.md §3).
	Accounts string
}

// Store is the shared state a single proxy instance owns.
type Store struct {
	users   map[string]User // keyed by username
	symbols []*regexp.Regexp

	nextSessionID uint64

	usernameToSession map[string]uint64
	sessionToUsername map[uint64]string

	sessionsToRemove map[uint64]struct{}
}

// NewStore builds a Store from a loaded user table and a set of symbol
// allow-list patterns (plain strings are matched literally; patterns
// containing regex metacharacters are compiled, mirroring config.hpp's
// mixed literal/glob symbol set).
func NewStore(users map[string]User, symbolPatterns []string) (*Store, error) {
	s := &Store{
		users:             make(map[string]User, len(users)),
		usernameToSession: make(map[string]uint64),
		sessionToUsername: make(map[uint64]string),
		sessionsToRemove:  make(map[uint64]struct{}),
	}
	for _, v := range users {
		s.users[v.Username] = v
	}
	for _, p := range symbolPatterns {
		re, err := compileSymbolPattern(p)
		if err != nil {
			return nil, err
		}
		s.symbols = append(s.symbols, re)
	}
	return s, nil
}

func compileSymbolPattern(p string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + p + ")$")
}

// LookupUser returns the configured user for username, if any.
func (s *Store) LookupUser(username string) (User, bool) {
	u, ok := s.users[username]
	return u, ok
}

// UpsertUser installs or replaces a user entry (auth-feed insert_user).
func (s *Store) UpsertUser(u User) {
	s.users[u.Username] = u
}

// DeleteUser removes a user entry (auth-feed remove_user). It does not
// by itself terminate any session currently bound to that username —
// callers decide whether a live session survives a credential revoke.
func (s *Store) DeleteUser(username string) {
	delete(s.users, username)
}

// SymbolAllowed reports whether symbol matches the configured allow-list.
// An empty allow-list permits everything.
func (s *Store) SymbolAllowed(symbol string) bool {
	if len(s.symbols) == 0 {
		return true
	}
	for _, re := range s.symbols {
		if re.MatchString(symbol) {
			return true
		}
	}
	return false
}

// NextSessionID mints the next client session id (Shared::next_session_id).
func (s *Store) NextSessionID() uint64 {
	s.nextSessionID++
	return s.nextSessionID
}

// BindSession records that username is authenticated on sessionID. It
// returns false without modifying state if username is already bound to
// a different, still-live session (spec invariant: one logged-on
// session per username).
func (s *Store) BindSession(username string, sessionID uint64) bool {
	if existing, ok := s.usernameToSession[username]; ok && existing != sessionID {
		return false
	}
	s.usernameToSession[username] = sessionID
	s.sessionToUsername[sessionID] = username
	return true
}

// UnbindSession releases the username<->session binding for sessionID,
// if it is the current holder of username.
func (s *Store) UnbindSession(sessionID uint64) {
	username, ok := s.sessionToUsername[sessionID]
	if !ok {
		return
	}
	delete(s.sessionToUsername, sessionID)
	if s.usernameToSession[username] == sessionID {
		delete(s.usernameToSession, username)
	}
}

// SessionForUsername returns the session currently bound to username.
func (s *Store) SessionForUsername(username string) (uint64, bool) {
	id, ok := s.usernameToSession[username]
	return id, ok
}

// UsernameForSession returns the username currently bound to sessionID.
func (s *Store) UsernameForSession(sessionID uint64) (string, bool) {
	u, ok := s.sessionToUsername[sessionID]
	return u, ok
}

// MarkForRemoval adds sessionID to the pending-teardown set (equivalent
// to Shared::sessions_to_remove_). The client manager's GC tick drains
// this set once per second.
func (s *Store) MarkForRemoval(sessionID uint64) {
	s.sessionsToRemove[sessionID] = struct{}{}
}

// DrainPendingRemovals returns and clears the pending-teardown set.
func (s *Store) DrainPendingRemovals() []uint64 {
	if len(s.sessionsToRemove) == 0 {
		return nil
	}
	out := make([]uint64, 0, len(s.sessionsToRemove))
	for id := range s.sessionsToRemove {
		out = append(out, id)
	}
	s.sessionsToRemove = make(map[uint64]struct{})
	return out
}
