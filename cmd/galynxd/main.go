// galynxd is the local session daemon behind the Galynx desktop client. It
// owns the credentials, the authenticated connection to the Galynx server,
// and the realtime subscription, and exposes them to the frontend over a
// loopback HTTP + WebSocket API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/oklog/ulid/v2"

	"github.com/galynx/galynx/pkg/bus"
	"github.com/galynx/galynx/pkg/client"
	"github.com/galynx/galynx/pkg/config"
	"github.com/galynx/galynx/pkg/ipc"
	"github.com/galynx/galynx/pkg/logging"
	"github.com/galynx/galynx/pkg/securestore"
)

// Version information - set via ldflags during build
var version = "1.0.0-dev"

const appIdentifier = "com.galynx.desktop"

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("galynxd", version)
		return
	}

	if err := run(configPath); err != nil {
		fmt.Fprintln(os.Stderr, "galynxd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	runID := ulid.Make().String()
	logger, err := logging.NewLogger(filepath.Join(cfg.DataDir, "logs"), runID)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logger.Close()
	logger.SetMinLevel(logging.Level(cfg.LogLevel))

	store, err := securestore.Open(
		filepath.Join(cfg.DataDir, "secure.db"),
		securestore.DeriveSeed(appIdentifier, runtime.GOOS, currentUsername(), cfg.DataDir),
	)
	if err != nil {
		return fmt.Errorf("opening secure store: %w", err)
	}
	defer store.Close()

	eventBus, cleanup, err := buildBus(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	apiBaseOverride := os.Getenv(client.EnvAPIBase)
	if apiBaseOverride == "" {
		apiBaseOverride = cfg.APIBase
	}

	session := client.New(client.Options{
		Store:           store,
		Bus:             eventBus,
		Logger:          logger,
		APIBaseOverride: apiBaseOverride,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(logging.CategorySession, "startup", "daemon starting", map[string]any{
		"version":  version,
		"api_base": session.APIBase(),
		"bind":     cfg.BindAddress,
	})

	go session.ValidateStoredSession(ctx)

	server := ipc.NewServer(ipc.Config{
		BindAddress: cfg.BindAddress,
		Version:     version,
	}, session, eventBus)

	err = server.Start(ctx)

	session.DisconnectRealtime()
	logger.Info(logging.CategorySession, "shutdown", "daemon stopped", nil)
	return err
}

// buildBus returns the in-memory bus, teed into NATS when an external URL is
// configured. A NATS connect failure is fatal only when explicitly asked for.
func buildBus(cfg config.Config, logger *logging.Logger) (bus.Bus, func(), error) {
	memory := bus.NewMemoryBus()
	if cfg.NATSURL == "" {
		return memory, func() { memory.Close() }, nil
	}

	natsCfg := bus.DefaultConfig()
	natsCfg.URL = cfg.NATSURL
	natsBus, err := bus.NewNATSBus(natsCfg)
	if err != nil {
		memory.Close()
		return nil, nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATSURL, err)
	}
	logger.Info(logging.CategorySession, "nats_connected", "mirroring events to NATS", map[string]any{"url": cfg.NATSURL})

	tee := bus.NewTee(memory, natsBus)
	return tee, func() { tee.Close() }, nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
