// Command mktops is the operator CLI of the demand board: reports,
// spreadsheet exports, permission matrix maintenance and backend setup.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/app"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/config"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/observability"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mktops",
	Short: "Marketing-ops demand board operator CLI",
	Long: `mktops talks to the same Supabase project as the BFA server.
Configuration comes from the environment, .env and the settings file
written by 'mktops setup'.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.AddCommand(reportCmd(), demandsCmd(), permissionsCmd(), setupCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	_ = config.LoadDotEnv(".env")
	cfg := config.Load()
	if s, err := config.LoadSettings(cfg.SettingsFile); err == nil {
		cfg.ApplySettings(s)
	}
	return cfg
}

// withApp wires the application against the configured backend and runs fn.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg := loadConfig()
	if missing := cfg.MissingBackend(); missing != "" {
		return &domain.ErrNotConfigured{Setting: missing}
	}

	logger := observability.NewLogger(logLevel, "mktops")
	defer logger.Sync()

	a, err := app.New(cfg, app.Deps{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Shutdown(10 * time.Second)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseRange reads --from/--to (YYYY-MM-DD); empty means unbounded.
func parseRange(from, to string) (domain.Date, domain.Date, error) {
	var f, t domain.Date
	var err error
	if from != "" {
		if f, err = domain.ParseDate(from); err != nil {
			return f, t, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if t, err = domain.ParseDate(to); err != nil {
			return f, t, fmt.Errorf("--to: %w", err)
		}
	}
	return f, t, nil
}
