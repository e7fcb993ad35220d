package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/cartsync/internal/cartserver"
	"github.com/MarkoPoloResearchLab/cartsync/internal/store/gormstore"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagTokenSigningKey   = "token-signing-key"
	flagTokenIssuer       = "token-issuer"
	flagTokenTTL          = "token-ttl"
	configKeyDatabaseURL  = "database_url"
	configKeyListenAddr   = "listen_addr"
	configKeyOrigins      = "allowed_origins"
	configKeySigningKey   = "token_signing_key"
	configKeyTokenIssuer  = "token_issuer"
	configKeyTokenTTL     = "token_ttl"
	defaultDatabaseURL    = "sqlite:///tmp/cartsync.db"
	defaultHTTPListenAddr = ":9090"
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	AllowedOrigins  string
	TokenSigningKey string
	TokenIssuer     string
	TokenTTL        time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cartd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "cartd",
		Short:         "Storefront cart HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "database connection string (sqlite:// or postgres://)")
	cmd.Flags().String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().String(flagTokenSigningKey, "", "HS256 signing key for bearer tokens")
	cmd.Flags().String(flagTokenIssuer, "", "issuer claim for bearer tokens")
	cmd.Flags().Duration(flagTokenTTL, 0, "bearer token lifetime")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := []struct {
		configKey string
		envName   string
		flagName  string
	}{
		{configKeyDatabaseURL, "DATABASE_URL", flagDatabaseURL},
		{configKeyListenAddr, "HTTP_LISTEN_ADDR", flagListenAddr},
		{configKeyOrigins, "ALLOWED_ORIGINS", flagAllowedOrigins},
		{configKeySigningKey, "TOKEN_SIGNING_KEY", flagTokenSigningKey},
		{configKeyTokenIssuer, "TOKEN_ISSUER", flagTokenIssuer},
		{configKeyTokenTTL, "TOKEN_TTL", flagTokenTTL},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.configKey, binding.envName); err != nil {
			return err
		}
		if err := viper.BindPFlag(binding.configKey, cmd.Flags().Lookup(binding.flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultHTTPListenAddr
	}
	cfg.AllowedOrigins = viper.GetString(configKeyOrigins)
	cfg.TokenSigningKey = viper.GetString(configKeySigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.TokenTTL = viper.GetDuration(configKeyTokenTTL)
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	store := gormstore.New(gormDB)
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := store.SeedProducts(ctx, demoCatalog()); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}

	serverConfig := cartserver.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  cartserver.ParseAllowedOrigins(cfg.AllowedOrigins),
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
		TokenTTL:        cfg.TokenTTL,
	}
	return cartserver.Run(ctx, serverConfig, store)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "cartsync.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// demoCatalog seeds a first-run database with a browsable product list.
func demoCatalog() []cartserver.StoredProduct {
	return []cartserver.StoredProduct{
		{ID: "prod-grain-10kg", Name: "Grain sack 10kg", PriceCents: 15000, ImageRef: "https://img.example/grain.png", Category: "staples", Vendor: "Millhouse", Description: "Stone-ground wheat, ten kilos"},
		{ID: "prod-tea-classic", Name: "Classic tea box", PriceCents: 900, ImageRef: "https://img.example/tea.png", Category: "drinks", Vendor: "Leafworks", Description: "Fifty loose-leaf bags"},
		{ID: "prod-honey-500g", Name: "Mountain honey 500g", PriceCents: 4500, ImageRef: "https://img.example/honey.png", Category: "staples", Vendor: "Apiary Co", Description: "Raw wildflower honey"},
		{ID: "prod-soap-olive", Name: "Olive oil soap", PriceCents: 300, ImageRef: "https://img.example/soap.png", Category: "household", Vendor: "Suds & Sons", Description: "Cold-pressed olive soap bar"},
	}
}
