// Package config loads the proxy's static configuration from a TOML
// file (symbols, users, net/auth/server/client/test settings — the
// shape of the original's settings.hpp/config.hpp) and layers CLI flag
// overrides on top, following the teacher's ValidationError/
// ValidationErrors aggregate-error pattern.
package config

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/rjsadow/fixproxy/internal/crypto"
	"github.com/rjsadow/fixproxy/internal/shared"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidationErrors aggregates every ValidationError found while
// validating a Config, so a caller sees all problems at once instead of
// bailing on the first.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// NetConfig carries client-listener and upstream-dial addressing.
type NetConfig struct {
	ListenAddress   string `toml:"listen_address"`
	UpstreamAddress string `toml:"upstream_address"`
}

// AuthConfig carries the auth-feed websocket endpoint and credential
// validation method.
type AuthConfig struct {
	FeedURL            string        `toml:"feed_url"`
	BearerToken        string        `toml:"bearer_token"`
	Method             string        `toml:"method"`
	TimestampTolerance time.Duration `toml:"timestamp_tolerance"`
}

// ServerConfig carries the upstream FIX session's parameters. SenderCompID,
// TargetCompID, Username and Password are four independent settings (spec
// §4.2) — the first two stamp the FIX header, the latter two the Logon body.
type ServerConfig struct {
	SenderCompID   string        `toml:"sender_comp_id"`
	TargetCompID   string        `toml:"target_comp_id"`
	Username       string        `toml:"username"`
	Password       string        `toml:"password"`
	HeartBtInt     time.Duration `toml:"heart_bt_int"`
	ReconnectDelay time.Duration `toml:"reconnect_delay"`
}

// ClientConfig carries client session fuses, teardown policy and the
// Logon handshake's structural gates (spec §4.1/§8 properties #9, #10).
type ClientConfig struct {
	CompID               string        `toml:"comp_id"`
	LogonTimeout         time.Duration `toml:"logon_timeout"`
	LogonHeartbeatMin    time.Duration `toml:"logon_heartbeat_min"`
	LogonHeartbeatMax    time.Duration `toml:"logon_heartbeat_max"`
	UserResponseTimeout  time.Duration `toml:"user_response_timeout"`
	DisableRemoveClOrdID bool          `toml:"disable_remove_cl_ord_id"`
	RateLimitPerSecond   float64       `toml:"rate_limit_per_second"`
	RateLimitBurst       int           `toml:"rate_limit_burst"`
}

// TestConfig carries the optional frame-capture switch.
type TestConfig struct {
	FixDebug    bool   `toml:"fix_debug"`
	CaptureBucket string `toml:"capture_bucket"`
	CapturePrefix string `toml:"capture_prefix"`
}

// UserEntry is one row of the TOML [users.<key>] table.
type UserEntry struct {
	Component  string `toml:"component"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	StrategyID uint32 `toml:"strategy_id"`
	Accounts   string `toml:"accounts"`
}

// Config is the fully loaded proxy configuration.
type Config struct {
	Symbols []string             `toml:"symbols"`
	Users   map[string]UserEntry `toml:"users"`

	Net    NetConfig    `toml:"net"`
	Auth   AuthConfig   `toml:"auth"`
	Server ServerConfig `toml:"server"`
	Client ClientConfig `toml:"client"`
	Test   TestConfig   `toml:"test"`
}

// Load parses the TOML file at path and validates it. Decoding is
// strict: a key with no matching field is a parse error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.NewDecoder(bytes.NewReader(data)).Strict(true).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// Validate checks the loaded configuration for missing required fields
// and internally inconsistent values.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	if c.Net.ListenAddress == "" {
		errs = append(errs, ValidationError{"net.listen_address", "required"})
	}
	if c.Net.UpstreamAddress == "" {
		errs = append(errs, ValidationError{"net.upstream_address", "required"})
	}
	if c.Server.HeartBtInt <= 0 {
		errs = append(errs, ValidationError{"server.heart_bt_int", "must be positive"})
	}
	if c.Client.LogonTimeout <= 0 {
		errs = append(errs, ValidationError{"client.logon_timeout", "must be positive"})
	}
	if c.Client.LogonHeartbeatMax > 0 && c.Client.LogonHeartbeatMax < c.Client.LogonHeartbeatMin {
		errs = append(errs, ValidationError{"client.logon_heartbeat_max", "must be >= client.logon_heartbeat_min"})
	}
	if _, err := crypto.ParseMethod(c.Auth.Method); err != nil {
		errs = append(errs, ValidationError{"auth.method", err.Error()})
	}
	for key, u := range c.Users {
		if u.Username == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("users.%s.username", key), "required"})
		}
	}
	return errs
}

// BuildUserTable converts the TOML [users.*] table into the shared
// package's User type, keyed the same way as the TOML table.
func BuildUserTable(c *Config) map[string]shared.User {
	out := make(map[string]shared.User, len(c.Users))
	for key, u := range c.Users {
		out[key] = shared.User{
			Component:  u.Component,
			Username:   u.Username,
			Password:   u.Password,
			StrategyID: u.StrategyID,
			Accounts:   u.Accounts,
		}
	}
	return out
}

// ApplyFlagOverrides binds a subset of dotted-name CLI flags to the
// fields of cfg, letting operators override the listen address or
// upstream without editing the TOML file (spec §7 CLI surface). Register
// the flags before parsing: every parse of the command line writes the
// flags it finds into cfg, so parsing again after cfg has been loaded
// from the file re-applies the overrides on top of it.
func ApplyFlagOverrides(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Net.ListenAddress, "net.listen_address", cfg.Net.ListenAddress, "client listen address")
	fs.StringVar(&cfg.Net.UpstreamAddress, "net.upstream_address", cfg.Net.UpstreamAddress, "upstream FIX address")
	fs.Var(newDurationFlag(&cfg.Server.HeartBtInt), "server.heart_bt_int", "upstream heartbeat interval")
	fs.StringVar(&cfg.Server.SenderCompID, "server.sender_comp_id", cfg.Server.SenderCompID, "proxy's sender_comp_id on the upstream session")
	fs.StringVar(&cfg.Server.TargetCompID, "server.target_comp_id", cfg.Server.TargetCompID, "upstream's expected target_comp_id")
	fs.Var(newDurationFlag(&cfg.Client.LogonTimeout), "client.logon_timeout", "client logon fuse")
	fs.StringVar(&cfg.Client.CompID, "client.comp_id", cfg.Client.CompID, "proxy's comp_id as seen by clients")
	fs.Var(newDurationFlag(&cfg.Client.LogonHeartbeatMin), "client.logon_heartbeat_min", "minimum heart_bt_int a client Logon may request")
	fs.Var(newDurationFlag(&cfg.Client.LogonHeartbeatMax), "client.logon_heartbeat_max", "maximum heart_bt_int a client Logon may request")
	fs.BoolVar(&cfg.Client.DisableRemoveClOrdID, "client.disable_remove_cl_ord_id", cfg.Client.DisableRemoveClOrdID, "retain terminal order state instead of releasing it")
	fs.BoolVar(&cfg.Test.FixDebug, "test.fix_debug", cfg.Test.FixDebug, "archive raw frames to the configured capture bucket")
	fs.StringVar(&cfg.Auth.Method, "client.auth_method", cfg.Auth.Method, "password validation method: empty, hmac_sha256 or hmac_sha256_ts")
	fs.Var(newDurationFlag(&cfg.Auth.TimestampTolerance), "client.auth_timestamp_tolerance", "allowed clock skew for hmac_sha256_ts timestamps")
}

// durationFlag adapts time.Duration to flag.Value so dotted flag names
// can carry duration syntax ("30s", "2m") the same way TOML does.
type durationFlag struct{ target *time.Duration }

func newDurationFlag(target *time.Duration) *durationFlag { return &durationFlag{target: target} }

func (d *durationFlag) String() string {
	if d.target == nil {
		return "0s"
	}
	return d.target.String()
}

func (d *durationFlag) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d.target = v
	return nil
}
