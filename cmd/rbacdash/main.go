package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/rbacdash/internal/api"
	"github.com/foxzi/rbacdash/internal/app"
	"github.com/foxzi/rbacdash/internal/config"
	rbacTLS "github.com/foxzi/rbacdash/internal/tls"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rbacdash",
	Short: "rbacdash - RBAC admin dashboard",
	Long:  `rbacdash manages users, roles and permissions with an activity log and CSV export.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rbacdash version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and RBACDASH_* env when empty)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

// loadConfig reads cfgFile, or builds the default config when no file is given
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Default()
	}
	return config.Load(cfgFile)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	api.Version = version

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(ctx)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	directory := "disabled"
	if cfg.Directory.IsEnabled() {
		directory = cfg.Directory.BaseURL
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		fmt.Printf("  Storage: redis %s (prefix %q)\n", cfg.Storage.RedisAddr, cfg.Storage.RedisPrefix)
	default:
		fmt.Printf("  Storage: bolt %s\n", cfg.Storage.Path)
	}
	switch {
	case cfg.API.TLS.ACME.Enabled:
		fmt.Printf("  TLS: ACME for %v\n", cfg.API.TLS.ACME.Domains)
	case cfg.API.TLS.CertFile != "":
		info, err := rbacTLS.ReadCertificateInfo(cfg.API.TLS.CertFile)
		if err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		fmt.Printf("  TLS: %s (expires in %d days)\n", info.Subject, info.DaysLeft(time.Now()))
	}
	fmt.Printf("  Directory: %s\n", directory)
	if len(cfg.Auth.Users) == 0 {
		fmt.Printf("  Auth: demo credential (no users configured)\n")
	} else {
		fmt.Printf("  Auth: %d user(s)\n", len(cfg.Auth.Users))
	}
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
