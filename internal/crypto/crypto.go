// Package crypto implements the password validation predicate consumed by
// the router during logon authentication. It does not know about FIX, the
// config file, or the transport — it is invoked as validate(password,
// secret, raw_data), mirroring roq::fix_proxy::tools::Crypto in the
// original implementation.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Method selects how Validator checks a presented password against a
// user's secret. It mirrors tools::Crypto::Method from the C++ original.
type Method int

const (
	// Undefined performs a plain string comparison between password and
	// secret. This is the proxy's default when --client.auth_method is
	// not set.
	Undefined Method = iota
	// HMACSHA256 treats password as base64(HMAC-SHA256(secret, raw_data)).
	HMACSHA256
	// HMACSHA256TS is HMACSHA256 plus a timestamp embedded in raw_data,
	// checked against the configured tolerance.
	HMACSHA256TS
)

// ParseMethod converts a CLI flag value to a Method. An empty string is
// Undefined.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "":
		return Undefined, nil
	case "hmac_sha256":
		return HMACSHA256, nil
	case "hmac_sha256_ts":
		return HMACSHA256TS, nil
	default:
		return Undefined, fmt.Errorf("crypto: unknown auth method %q", s)
	}
}

// Validator validates a presented password against a user's secret.
type Validator struct {
	method             Method
	timestampTolerance time.Duration
	now                func() time.Time
}

// NewValidator creates a Validator for method, with timestampTolerance
// applied only by HMACSHA256TS.
func NewValidator(method Method, timestampTolerance time.Duration) *Validator {
	return &Validator{
		method:             method,
		timestampTolerance: timestampTolerance,
		now:                time.Now,
	}
}

// Validate reports whether password is valid for secret given raw_data as
// the signing payload. For HMACSHA256TS, raw_data is expected to be
// "<unix_nanos>.<payload>"; the timestamp component is checked against
// timestampTolerance and then included verbatim in the MAC input, matching
// the original's behavior of signing the full raw_data string.
func (v *Validator) Validate(password, secret, rawData string) bool {
	switch v.method {
	case Undefined:
		return password == secret
	case HMACSHA256:
		return hmacEqual(password, secret, rawData)
	case HMACSHA256TS:
		if !v.timestampFresh(rawData) {
			return false
		}
		return hmacEqual(password, secret, rawData)
	default:
		return false
	}
}

func (v *Validator) timestampFresh(rawData string) bool {
	if v.timestampTolerance <= 0 {
		return true
	}
	ts, _, ok := strings.Cut(rawData, ".")
	if !ok {
		return false
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	delta := v.now().Sub(time.Unix(0, nanos))
	if delta < 0 {
		delta = -delta
	}
	return delta <= v.timestampTolerance
}

func hmacEqual(password, secret, rawData string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawData))
	expected := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(password))
}
