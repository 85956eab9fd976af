package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListSessionsRequiresBearerToken(t *testing.T) {
	s := &Server{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)

	handler := s.authenticated(s.listSessions)
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestBearerTokenExtraction(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	tok, ok := bearerToken(req)
	if !ok || tok != "abc.def.ghi" {
		t.Fatalf("bearerToken = %q, %v", tok, ok)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	if _, ok := bearerToken(req2); ok {
		t.Fatal("expected no token when header is absent")
	}
}
