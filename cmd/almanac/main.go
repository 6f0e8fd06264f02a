package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"almanac/internal/catalog"
	"almanac/internal/config"
	appLog "almanac/internal/log"
	"almanac/internal/templates"
	"almanac/internal/web"
)

const version = "0.3.0"

var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "almanac",
		Short:         "Caribbean almanac: historical and cultural event dates by country and year",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (created with defaults if missing)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with ALMANAC_* overrides")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(expandCmd())
	rootCmd.AddCommand(easterCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		appLog.Error("command failed", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration from the optional file, the dotenv
// file and the environment, and applies the log level.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg *config.Config
	if configPath == "" {
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
		cfg.Normalize()
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", configPath, err)
		}
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// openSource picks the template source from cfg: database, then URL,
// then file, then the built-in data set. The returned closer releases the
// database if one was opened.
func openSource(cfg *config.Config) (templates.Source, func(), error) {
	noop := func() {}
	switch {
	case cfg.Templates.DB != "":
		st, err := templates.Open(cfg.Templates.DB)
		if err != nil {
			return nil, noop, err
		}
		return templates.StoreSource{Store: st}, func() { st.Close() }, nil
	case cfg.Templates.URL != "":
		return templates.NewURLSource(cfg.Templates.URL, cfg.CacheDir), noop, nil
	case cfg.Templates.Path != "":
		return templates.FileSource{Path: cfg.Templates.Path}, noop, nil
	default:
		return templates.EmbeddedSource(), noop, nil
	}
}

// loadCatalog opens the configured source and performs the first load.
func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, func(), error) {
	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return nil, closeSrc, err
	}
	cat := catalog.New(src)
	if _, err := cat.Reload(ctx); err != nil {
		closeSrc()
		return nil, func() {}, err
	}
	return cat, closeSrc, nil
}

func serveCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the almanac HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appLog.Info("almanac starting", "version", version)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// --listen overrides config file listen if provided.
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("effective config",
				"listen", cfg.Listen,
				"default_country", cfg.DefaultCountry,
				"templates_path", cfg.Templates.Path,
				"templates_db", cfg.Templates.DB,
				"templates_url_set", cfg.Templates.URL != "",
				"refresh", cfg.RefreshCron,
				"auth", cfg.AuthEnabled(),
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				appLog.Info("signal received, shutting down", "signal", sig.String())
				cancel()
			}()

			cat, closeSrc, err := loadCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeSrc()

			if err := cat.StartRefresh(ctx, cfg.RefreshCron); err != nil {
				return err
			}
			defer cat.Stop()

			if err := web.StartServer(ctx, cfg, cat); err != nil {
				return err
			}

			appLog.Info("almanac exiting")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
