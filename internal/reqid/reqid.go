// Package reqid implements the request-id validator and generator used
// by the client session and the router (spec §3, §4.1, §4.4.b).
package reqid

import (
	"fmt"
	"sync/atomic"
)

// ValidBase64WebSafe reports whether s consists only of the URL-safe
// Base64 alphabet without padding: [A-Za-z0-9_-]. The standard library's
// base64.URLEncoding accepts padding and multiples-of-4 length, which is
// stricter than a pure alphabet check and would reject legitimate unpadded
// client-supplied ids used verbatim as route keys — so this is a direct
// character-class test rather than a decode-and-see call (see DESIGN.md
// for why this stays on the standard library).
func ValidBase64WebSafe(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// Generator mints server-side request ids of the form "proxy-<n>", seeded
// from a caller-supplied starting value. It does not read the clock: the
// client manager seeds each session's generator with the session id
// shifted left by 32 bits, so the generator stays deterministic and
// testable.
type Generator struct {
	next atomic.Uint64
}

// NewGenerator creates a Generator whose first minted id is seed+1.
func NewGenerator(seed uint64) *Generator {
	g := &Generator{}
	g.next.Store(seed)
	return g
}

// Next mints the next server-side request id.
func (g *Generator) Next() string {
	n := g.next.Add(1)
	return fmt.Sprintf("proxy-%d", n)
}
