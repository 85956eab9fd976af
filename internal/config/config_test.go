package config

import (
	"testing"
	"time"
)

func TestValidateRequiresAddresses(t *testing.T) {
	cfg := &Config{}
	errs := cfg.Validate()
	found := map[string]bool{}
	for _, e := range errs {
		found[e.Field] = true
	}
	for _, want := range []string{"net.listen_address", "net.upstream_address", "server.heart_bt_int", "client.logon_timeout"} {
		if !found[want] {
			t.Errorf("expected a validation error for %s", want)
		}
	}
}

func TestValidateRejectsUnknownCryptoMethod(t *testing.T) {
	cfg := &Config{
		Net:    NetConfig{ListenAddress: "127.0.0.1:9000", UpstreamAddress: "127.0.0.1:9001"},
		Server: ServerConfig{HeartBtInt: 30},
		Client: ClientConfig{LogonTimeout: 5},
		Auth:   AuthConfig{Method: "not_a_method"},
	}
	errs := cfg.Validate()
	for _, e := range errs {
		if e.Field == "auth.method" {
			return
		}
	}
	t.Fatal("expected a validation error for auth.method")
}

func TestValidateRejectsInvertedHeartbeatRange(t *testing.T) {
	cfg := &Config{
		Net:    NetConfig{ListenAddress: "127.0.0.1:9000", UpstreamAddress: "127.0.0.1:9001"},
		Server: ServerConfig{HeartBtInt: 30},
		Client: ClientConfig{LogonTimeout: 5, LogonHeartbeatMin: 60 * time.Second, LogonHeartbeatMax: 10 * time.Second},
	}
	errs := cfg.Validate()
	for _, e := range errs {
		if e.Field == "client.logon_heartbeat_max" {
			return
		}
	}
	t.Fatal("expected a validation error for client.logon_heartbeat_max")
}

func TestBuildUserTable(t *testing.T) {
	cfg := &Config{Users: map[string]UserEntry{
		"alice": {Username: "alice", Password: "secret", StrategyID: 3},
	}}
	table := BuildUserTable(cfg)
	u, ok := table["alice"]
	if !ok || u.Username != "alice" || u.StrategyID != 3 {
		t.Fatalf("unexpected table: %+v, %v", u, ok)
	}
}
