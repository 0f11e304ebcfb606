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

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rickgao/socket-relay/internal/config"
	"github.com/rickgao/socket-relay/internal/server"
	"github.com/rickgao/socket-relay/internal/token"
	"github.com/rickgao/socket-relay/internal/version"
)

var (
	configPath string
	envFile    string
	logLevel   string
	authAddr   string
	socketAddr string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "devserver",
		Short:         "Development login and socket server",
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
				logger.Error("devserver failed", "error", err)
				return err
			}
			return nil
		},
	}

	root.Flags().StringVar(&configPath, "config", "", "path to config file (defaults only when empty)")
	root.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading config")
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.Flags().StringVar(&authAddr, "auth-addr", "", "login listener address (overrides config)")
	root.Flags().StringVar(&socketAddr, "socket-addr", "", "socket listener address (overrides config)")

	return root
}

func run(parent context.Context, logger *slog.Logger) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	logger.Info("starting devserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}
	if authAddr != "" {
		cfg.Server.AuthAddr = authAddr
	}
	if socketAddr != "" {
		cfg.Server.SocketAddr = socketAddr
	}

	if len(cfg.Server.Accounts) == 0 {
		logger.Warn("no accounts configured, accepting any credentials")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(serverConfig(cfg.Server), logger)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("devserver stopped")
	return nil
}

func serverConfig(c config.ServerConfig) server.Config {
	cfg := server.Config{
		AuthAddr:   c.AuthAddr,
		SocketAddr: c.SocketAddr,
		Counters:   c.Counters,
		SendRate:   c.SendRate,
		Socket:     server.DefaultSocketConfig(),
		Token: token.Config{
			MaxAge:          c.TokenMaxAge,
			CleanupInterval: c.TokenCleanupInterval,
		},
	}
	cfg.Socket.AuthTimeout = c.AuthTimeout
	if len(c.Accounts) > 0 {
		cfg.Accounts = server.StaticAccounts(c.Accounts)
	}
	return cfg
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}
