package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/confeed/internal/duckdb"
	"github.com/tinytelemetry/confeed/internal/ingest"
)

const (
	defaultBindHost            = "127.0.0.1"
	defaultTCPPort             = 4600
	defaultAPIPort             = 3600
	defaultMuxBufferSize       = DefaultMuxBuffer
	defaultQueryTimeout        = duckdb.DefaultQueryTimeout
	defaultInsertBatchSize     = 500
	defaultInsertFlushInterval = 250 * time.Millisecond
	defaultInsertFlushQueue    = duckdb.DefaultFlushQueueSize
	defaultRetentionDays       = duckdb.DefaultRetentionDays
	defaultSearchRate          = 10.0 // requests/second per client IP
	defaultSearchBurst         = 20
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Host                string        `mapstructure:"host"`
	Processor           string        `mapstructure:"processor"`
	TCPEnabled          bool          `mapstructure:"tcp-enabled"`
	TCPPort             int           `mapstructure:"tcp-port"`
	TCPAddr             string        `mapstructure:"tcp-addr"`
	MuxBufferSize       int           `mapstructure:"mux-buffer-size"`
	DBPath              string        `mapstructure:"db-path"`
	SeedFile            string        `mapstructure:"seed-file"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	SearchRate          float64       `mapstructure:"search-rate"`
	SearchBurst         int           `mapstructure:"search-burst"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	RetentionDays       int           `mapstructure:"retention-days"`
	JournalEnabled      bool          `mapstructure:"journal-enabled"`
	JournalPath         string        `mapstructure:"journal-path"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "confeed")
	defaultDBPath := filepath.Join(dataDir, "confeed.duckdb")
	defaultJournalPath := filepath.Join(dataDir, "ingest.journal")

	v := viper.New()
	v.SetEnvPrefix("CONFEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("host", defaultBindHost)
	v.SetDefault("processor", ingest.ProcessorModeParse)
	v.SetDefault("tcp-enabled", true)
	v.SetDefault("tcp-port", defaultTCPPort)
	v.SetDefault("mux-buffer-size", defaultMuxBufferSize)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("seed-file", "")
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("search-rate", defaultSearchRate)
	v.SetDefault("search-burst", defaultSearchBurst)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("journal-enabled", false)
	v.SetDefault("journal-path", defaultJournalPath)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "confeed", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.TCPPort <= 0 || cfg.TCPPort > 65535 {
		return cfg, fmt.Errorf("invalid tcp-port: %d", cfg.TCPPort)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.RetentionDays < 0 {
		return cfg, fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if cfg.SearchRate > 0 && cfg.SearchBurst <= 0 {
		return cfg, fmt.Errorf("invalid search-burst: %d", cfg.SearchBurst)
	}
	cfg.Processor = strings.ToLower(strings.TrimSpace(cfg.Processor))
	switch cfg.Processor {
	case ingest.ProcessorModeParse, ingest.ProcessorModePlain:
	default:
		return cfg, fmt.Errorf("invalid processor: %q (want %s or %s)", cfg.Processor, ingest.ProcessorModeParse, ingest.ProcessorModePlain)
	}

	// Expand ~ in paths
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.SeedFile = expandHome(cfg.SeedFile, home)
	cfg.JournalPath = expandHome(cfg.JournalPath, home)
	if cfg.JournalEnabled && strings.TrimSpace(cfg.JournalPath) == "" {
		return cfg, errors.New("journal-enabled requires journal-path")
	}

	if cfg.Host == "" {
		cfg.Host = defaultBindHost
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.TCPPort))
	}
	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
