// courier-relay is a federated ActivityPub relay. It exposes two families of
// server-side actors — a completion relay that rediscovers reply threads on
// its own instance, and one trends relay per mirrored instance — and pushes
// signed Announce activities into the inboxes of whoever follows them.
//
// Usage:
//
//	courier-relay /path/to/config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/hollowsky/courier-relay/internal/config"
	"github.com/hollowsky/courier-relay/internal/engine"
	"github.com/hollowsky/courier-relay/internal/httpapi"
	"github.com/hollowsky/courier-relay/internal/relay"
	"github.com/hollowsky/courier-relay/internal/remoteapi"
	"github.com/hollowsky/courier-relay/internal/sender"
	"github.com/hollowsky/courier-relay/internal/signer"
	"github.com/hollowsky/courier-relay/internal/store"
)

func main() {
	defer exitOnPanic()

	if len(os.Args) < 2 {
		fatal(fmt.Errorf("usage: courier-relay /path/to/config.yaml"))
	}
	cfg, err := config.Load(os.Args[1])
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}

	setupLogging(cfg.LogLevel)
	slog.Info("starting courier relay", "hostname", cfg.Hostname, "port", cfg.ListenPort)

	st, err := store.Open(cfg.DB)
	if err != nil {
		fatal(fmt.Errorf("open store: %w", err))
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		fatal(fmt.Errorf("migrate store: %w", err))
	}

	sg, err := signer.LoadOrGenerateSigner(cfg.RSAPrivateKeyPath, cfg.RSAPublicKeyPath)
	if err != nil {
		fatal(fmt.Errorf("load/generate RSA key pair: %w", err))
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	apiClient := remoteapi.New(cfg.HTTPTimeout, cfg.FederationConcurrency)

	snd := sender.New(cfg.Hostname, sg, httpClient, pingWatchdog, cfg.SenderFanInCapacity, cfg.SenderQueueCapacity)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	completionActor := relay.NewCompletionActor(cfg.Hostname)

	go snd.Start(ctx)

	go (&engine.TrendsLoop{
		ServiceHost:  cfg.Hostname,
		PollInterval: cfg.PollInterval,
		Store:        st,
		API:          apiClient,
		Sender:       snd,
	}).Start(ctx)

	go (&engine.TimelineLoop{
		CompletionActor: completionActor,
		PollInterval:    cfg.PollInterval,
		Store:           st,
		API:             apiClient,
	}).Start(ctx)

	go (&engine.DescendantsLoop{
		PollInterval:   cfg.PollInterval,
		WorkerCapacity: cfg.DescendantsWorkerCapacity,
		Store:          st,
		API:            apiClient,
	}).Start(ctx)

	go (&engine.CompletionLoop{
		CompletionActor: completionActor,
		PollInterval:    cfg.PollInterval,
		Store:           st,
		Sender:          snd,
	}).Start(ctx)

	httpSrv := httpapi.New(&httpapi.Server{
		Hostname:     cfg.Hostname,
		Store:        st,
		Signer:       sg,
		PublicKeyPEM: sg.PublicKeyPEM,
		HTTPClient:   httpClient,
		Sender:       snd,
		StaticDir:    cfg.StaticDir,
	})

	// Start blocks serving the listener; onReady fires once it's bound,
	// after every background loop above has already been spawned.
	httpSrv.Start(ctx, cfg.ListenAddr(), func() {
		slog.Info("listening", "addr", cfg.ListenAddr())
		notifyWatchdog(daemon.SdNotifyReady)
	})

	slog.Info("courier relay stopped")
}

// pingWatchdog is passed to the Sender as its OnDeliver hook: every
// successful outbound delivery counts as a liveness signal, per §6.
func pingWatchdog() {
	notifyWatchdog(daemon.SdNotifyWatchdog)
}

// notifyWatchdog is a no-op (besides the debug log) when the process isn't
// running under systemd with a watchdog configured — daemon.SdNotify
// reports that itself by returning ok=false, nil.
func notifyWatchdog(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		slog.Debug("sd_notify failed", "state", state, "error", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func fatal(err error) {
	slog.Error("fatal", "error", err)
	os.Exit(1)
}

// exitOnPanic is deferred at the top of main so a panic during startup
// (config, store, keys) is logged before the process exits. A panic in a
// background goroutine — including a Sender worker's deliberate panic on
// channel closure — is never recovered anywhere and crashes the whole
// process on its own, which is the fail-fast behavior §5/§6 ask for.
func exitOnPanic() {
	if r := recover(); r != nil {
		slog.Error("panic", "value", r)
		os.Exit(1)
	}
}
