package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/socket-relay/internal/auth"
	"github.com/rickgao/socket-relay/internal/config"
	"github.com/rickgao/socket-relay/internal/connection"
	"github.com/rickgao/socket-relay/internal/database"
	"github.com/rickgao/socket-relay/internal/packets"
	"github.com/rickgao/socket-relay/internal/relay"
	"github.com/rickgao/socket-relay/internal/session"
	"github.com/rickgao/socket-relay/internal/version"
	"github.com/rickgao/socket-relay/internal/writer"
)

var (
	configPath string
	envFile    string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relayclient",
		Short:         "Authenticated WebSocket client that prints relay events",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if err := run(cmd.Context(), logger); err != nil {
				logger.Error("relayclient failed", "error", err)
				return err
			}
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file (defaults only when empty)")
	root.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading config")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return root
}

func run(parent context.Context, logger *slog.Logger) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	logger.Info("starting relayclient",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}

	creds := auth.Credentials{Email: cfg.Login.Email, Password: cfg.Login.Password}
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("%w (set login.email or RELAY_EMAIL)", err)
	}

	logger.Info("configuration loaded",
		"ws_url", cfg.Connection.URL,
		"login_url", cfg.Login.URL,
		"credentials", creds,
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := relay.New(relay.Config{QueueSize: cfg.Relay.QueueSize}, logger.With("component", "relay"))
	sub := events.Subscribe()

	var archive *writer.EventWriter
	if cfg.Archive.Enabled {
		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		archive = writer.NewEventWriter(writer.WriterConfig{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, events.Subscribe(), pool, logger.With("component", "archive"))

		// Stopped explicitly after the relay closes so the tail is written.
		if err := archive.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		logger.Info("event archive enabled",
			"host", cfg.Archive.Database.Host,
			"database", cfg.Archive.Database.Name,
		)
	}

	loginClient := auth.NewClient(cfg.Login.URL,
		auth.WithLogger(logger.With("component", "login")),
		auth.WithTimeout(cfg.Login.Timeout),
		auth.WithRetries(cfg.Login.MaxRetries, cfg.Login.RetryBackoff),
		auth.WithUserAgent(version.UserAgent()),
	)

	var greeting packets.ClientPacket
	if !cfg.Session.DisableGreeting {
		greeting = packets.Hi(cfg.Session.Greeting)
	}
	bootstrap := session.New(session.Config{
		Credentials:   creds,
		Greeting:      greeting,
		GreetingDelay: cfg.Session.GreetingDelay,
	}, loginClient, logger.With("component", "session"))

	mgr := connection.NewManager(
		managerConfig(cfg.Connection),
		nil,
		connection.MultiHandler{events, bootstrap},
		logger.With("component", "connection"),
	)

	if err := mgr.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		printEvents(gctx, sub, logger)
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Info("received shutdown signal")
		case <-bootstrap.Done():
		case <-mgr.Done():
			logger.Info("connection manager exited")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mgr.Stop(shutdownCtx)
		bootstrap.Wait()
		events.Close()

		if archive != nil {
			if err := archive.Stop(shutdownCtx); err != nil {
				logger.Warn("archive stop incomplete", "error", err)
			}
			logger.Info("archive stopped", "stats", fmt.Sprintf("%+v", archive.Stats()))
		}
		return bootstrap.Err()
	})

	err = g.Wait()
	logger.Info("relayclient stopped", "stats", fmt.Sprintf("%+v", mgr.Stats()))
	return err
}

// printEvents logs every event until the relay closes.
func printEvents(ctx context.Context, sub *relay.Subscription, logger *slog.Logger) {
	defer sub.Unsubscribe()

	for {
		// Drain after cancel so close events are still printed.
		ev, err := sub.Next(context.WithoutCancel(ctx))
		if err != nil {
			return
		}
		logEvent(logger, ev)
	}
}

func logEvent(logger *slog.Logger, ev relay.Event) {
	attrs := []any{"kind", ev.Kind, "session_id", ev.SessionID}

	switch ev.Kind {
	case relay.KindMessage:
		if pkt, err := packets.DecodeServerPacket(ev.Data); err == nil {
			attrs = append(attrs, "packet", fmt.Sprintf("%+v", pkt))
		} else {
			attrs = append(attrs, "raw", string(ev.Data))
		}
	case relay.KindClose:
		attrs = append(attrs, "code", ev.Code, "reason", ev.Reason, "local", ev.Local)
	case relay.KindError:
		attrs = append(attrs, "error", ev.Err)
	case relay.KindReconnect:
		attrs = append(attrs, "attempt", ev.Attempt, "wait", ev.Wait)
	}

	logger.Info("event", attrs...)
}

func managerConfig(c config.ConnectionConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		Client: connection.ClientConfig{
			URL:              c.URL,
			HandshakeTimeout: c.HandshakeTimeout,
			PingInterval:     c.PingInterval,
			PingTimeout:      c.PingTimeout,
			WriteTimeout:     c.WriteTimeout,
			BufferSize:       c.BufferSize,
		},
		Backoff: connection.Backoff{
			Base:   c.ReconnectBaseDelay,
			Max:    c.ReconnectMaxDelay,
			Factor: c.ReconnectFactor,
			Jitter: c.ReconnectJitter,
		},
		MaxAttempts: c.MaxAttempts,
	}
}

// loadEnvFile loads a dotenv file if it exists. Variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}
