// Package admin exposes a read-only HTTP API for operators: list live
// sessions and force-disconnect a zombie. A session's request-id
// mappings are not exposed. Authentication is via an OIDC identity token, following the
// teacher's gateway auth pipeline shape (authenticate, then delegate)
// but verifying a bearer token against an OIDC provider instead of a
// static cookie/query-param scheme.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/rjsadow/fixproxy/internal/clientmanager"
)

// Config carries the OIDC issuer/audience the admin API trusts.
type Config struct {
	IssuerURL string
	Audience  string
}

// SessionSummary is the read-only projection of a client session the
// API exposes.
type SessionSummary struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	State    string `json:"state"`
	Remote   string `json:"remote_address"`
}

// Server is the admin HTTP API.
type Server struct {
	verifier *oidc.IDTokenVerifier
	manager  *clientmanager.Manager
	disconnect func(sessionID uint64)
}

// New constructs a Server. disconnect is called to forcibly tear down a
// session by id; the caller supplies it.
func New(ctx context.Context, cfg Config, manager *clientmanager.Manager, disconnect func(sessionID uint64)) (*Server, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, err
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience})
	return &Server{verifier: verifier, manager: manager, disconnect: disconnect}, nil
}

// Handler returns the http.Handler serving the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", s.authenticated(s.listSessions))
	mux.HandleFunc("/sessions/disconnect", s.authenticated(s.disconnectSession))
	return mux
}

func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if _, err := s.verifier.Verify(ctx, token); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	var out []SessionSummary
	for id, sess := range s.manager.All() {
		out = append(out, SessionSummary{
			ID:       id,
			Username: sess.Username,
			State:    sess.State.String(),
			Remote:   sess.RemoteAddr(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) disconnectSession(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if _, ok := s.manager.Get(id); !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}
	s.disconnect(id)
	w.WriteHeader(http.StatusAccepted)
}
