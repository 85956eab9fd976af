// Command fixproxyd runs the FIX 4.4 order-flow proxy: it terminates
// client FIX sessions, translates their request ids and injects party
// identity, and forwards the result to a single upstream FIX session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rjsadow/fixproxy/internal/audit"
	"github.com/rjsadow/fixproxy/internal/authfeed"
	"github.com/rjsadow/fixproxy/internal/capture"
	"github.com/rjsadow/fixproxy/internal/clientmanager"
	"github.com/rjsadow/fixproxy/internal/clientsession"
	"github.com/rjsadow/fixproxy/internal/config"
	"github.com/rjsadow/fixproxy/internal/crypto"
	"github.com/rjsadow/fixproxy/internal/ratelimit"
	"github.com/rjsadow/fixproxy/internal/router"
	"github.com/rjsadow/fixproxy/internal/scheduler"
	"github.com/rjsadow/fixproxy/internal/serversession"
	"github.com/rjsadow/fixproxy/internal/shared"
	"github.com/rjsadow/fixproxy/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fixproxyd", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to the TOML configuration file")
	jsonLogs := fs.Bool("log.json", false, "emit structured logs as JSON instead of text")
	cfg := &config.Config{}
	config.ApplyFlagOverrides(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "fixproxyd: -config is required")
		return 2
	}

	loaded, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixproxyd: %v\n", err)
		return 1
	}
	*cfg = *loaded
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := newLogger(*jsonLogs)

	store, err := shared.NewStore(config.BuildUserTable(cfg), cfg.Symbols)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	method, err := crypto.ParseMethod(cfg.Auth.Method)
	if err != nil {
		log.Error("invalid auth method", "error", err)
		return 1
	}
	validator := crypto.NewValidator(method, cfg.Auth.TimestampTolerance)
	rt := router.New(store, validator, cfg.Client.DisableRemoveClOrdID)

	listener, err := wire.Listen(cfg.Net.ListenAddress)
	if err != nil {
		log.Error("failed to bind client listener", "error", err, "address", cfg.Net.ListenAddress)
		return 1
	}
	defer listener.Close()

	clients := clientmanager.New(store, clientsession.Config{
		LogonTimeout:         cfg.Client.LogonTimeout,
		UserResponseTimeout:  cfg.Client.UserResponseTimeout,
		DisableRemoveClOrdID: cfg.Client.DisableRemoveClOrdID,
		CompID:               cfg.Client.CompID,
		LogonHeartbeatMin:    cfg.Client.LogonHeartbeatMin,
		LogonHeartbeatMax:    cfg.Client.LogonHeartbeatMax,
	}, 64, 1024)

	var limiter *ratelimit.Limiter
	if cfg.Client.RateLimitPerSecond > 0 {
		limiter = ratelimit.New(cfg.Client.RateLimitPerSecond, cfg.Client.RateLimitBurst, 5*time.Minute)
	}

	server := serversession.New(serversession.Config{
		Address:        cfg.Net.UpstreamAddress,
		SenderCompID:   cfg.Server.SenderCompID,
		TargetCompID:   cfg.Server.TargetCompID,
		Username:       cfg.Server.Username,
		Password:       cfg.Server.Password,
		HeartBtInt:     cfg.Server.HeartBtInt,
		ReconnectDelay: cfg.Server.ReconnectDelay,
	})
	runner := serversession.NewRunner(func() (wire.Conn, error) {
		return wire.Dial(cfg.Net.UpstreamAddress)
	})

	var feed *authfeed.Client
	if cfg.Auth.FeedURL != "" {
		feed = authfeed.New(authfeed.Config{
			URL:         cfg.Auth.FeedURL,
			BearerToken: cfg.Auth.BearerToken,
			DialTimeout: 10 * time.Second,
			ReadTimeout: time.Minute,
		})
	}

	var auditLog *audit.Log
	if cfg.Test.FixDebug {
		auditLog, err = audit.Open("fixproxy-audit.db")
		if err != nil {
			log.Warn("audit log unavailable", "error", err)
		} else {
			defer auditLog.Close()
		}
	}

	var captureStore *capture.Store
	if cfg.Test.FixDebug && cfg.Test.CaptureBucket != "" {
		ctx := context.Background()
		captureStore, err = capture.NewStore(ctx, cfg.Test.CaptureBucket, cfg.Test.CapturePrefix)
		if err != nil {
			log.Warn("frame capture unavailable", "error", err)
		}
	}
	onAudit := func(sessionID uint64, username, kind, detail string, at time.Time) {
		if auditLog == nil {
			return
		}
		if err := auditLog.Record(context.Background(), sessionID, username, audit.Kind(kind), detail, at); err != nil {
			log.Warn("failed to record audit event", "error", err)
		}
	}

	engine := scheduler.New(log, store, rt, clients, limiter, server, runner, feed, listener, onAudit, captureStore)

	log.Info("fixproxyd starting", "listen", cfg.Net.ListenAddress, "upstream", cfg.Net.UpstreamAddress)
	if err := engine.Run(context.Background()); err != nil {
		log.Error("engine stopped with error", "error", err)
		return 1
	}
	log.Info("fixproxyd stopped cleanly")
	return 0
}

func newLogger(jsonLogs bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
