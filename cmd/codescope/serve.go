package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codescope/internal/api"
	"codescope/internal/config"
	"codescope/internal/logging"
	"codescope/internal/project"
	"codescope/internal/storage"
	"codescope/internal/symbols"
)

var (
	serveBind        string
	servePort        int
	serveMaxFileSize int64
	serveMaxProjects int
	serveLogLevel    string
	serveLogFormat   string
	serveNoAudit     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve [path]",
	Short: "Start the index and retrieval server",
	Long: `Start the HTTP server. If a path is given it is pre-indexed before the
server accepts requests; otherwise projects are indexed on the first session
that touches them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveBind, "bind", "", "Bind address (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.Flags().Int64Var(&serveMaxFileSize, "max-file-size", 0, "Per-file byte cap (default 1 MiB)")
	serveCmd.Flags().IntVar(&serveMaxProjects, "max-projects", 0, "Resident project cap (default 5)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "", "Log format: human or json")
	serveCmd.Flags().BoolVar(&serveNoAudit, "no-audit", false, "Disable the SQLite audit trail")
}

// configDir is where the daemon-level config and audit database live.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, config.WorkspaceDirName), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags override the config file.
	if serveBind != "" {
		cfg.Host = serveBind
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveMaxFileSize != 0 {
		cfg.MaxFileSize = serveMaxFileSize
	}
	if serveMaxProjects != 0 {
		cfg.MaxProjects = serveMaxProjects
	}
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}
	if serveLogFormat != "" {
		cfg.Logging.Format = serveLogFormat
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.ParseFormat(cfg.Logging.Format),
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})

	if !symbols.Available() {
		logger.Warn("built without cgo: file tree, grep and peek work, symbol extraction is disabled", nil)
	}

	registry := project.NewRegistry(cfg, logger)

	var audit *storage.AuditStore
	if !serveNoAudit {
		audit, err = storage.OpenAudit(dir, logger)
		if err != nil {
			logger.Warn("audit trail disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	if len(args) == 1 {
		logger.Info("pre-indexing project", map[string]interface{}{"path": args[0]})
		if _, err := registry.GetOrCreate(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("pre-indexing %q: %w", args[0], err)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := api.NewServer(addr, cfg, registry, audit, logger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("codescope listening on http://%s\n", addr)
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case sig := <-shutdown:
		logger.Info("received shutdown signal", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error during shutdown", map[string]interface{}{"error": err.Error()})
	}

	// Persist index caches and annotations before exit.
	registry.Shutdown()
	if audit != nil {
		audit.Close()
	}
	return nil
}
