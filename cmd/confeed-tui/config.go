package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/confeed/internal/fetcher"
	"github.com/tinytelemetry/confeed/internal/model"
)

const defaultAPIURL = "http://127.0.0.1:3600"

// cliConfig holds only TUI-relevant configuration.
type cliConfig struct {
	Source             string        `mapstructure:"source"`
	APIURL             string        `mapstructure:"api-url"`
	BlueskyHost        string        `mapstructure:"bluesky-host"`
	RSSURL             string        `mapstructure:"rss-url"`
	Hashtag            string        `mapstructure:"hashtag"`
	PageSize           int           `mapstructure:"page-size"`
	FetchTimeout       time.Duration `mapstructure:"fetch-timeout"`
	PrefetchThreshold  int           `mapstructure:"prefetch-threshold"`
	FollowUp           bool          `mapstructure:"follow-up"`
	ReverseScrollWheel bool          `mapstructure:"reverse-scroll-wheel"`
}

// loadCLIConfig reads defaults, the config file and CONFEED_* env vars.
// Non-empty overrides (from flags) win over all of them.
func loadCLIConfig(configPath string, overrides map[string]string) (cliConfig, error) {
	var cfg cliConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CONFEED")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("source", fetcher.SourceAPI)
	v.SetDefault("api-url", defaultAPIURL)
	v.SetDefault("bluesky-host", fetcher.DefaultBlueskyHost)
	v.SetDefault("rss-url", "")
	v.SetDefault("hashtag", model.DefaultHashtag)
	v.SetDefault("page-size", model.DefaultPageSize)
	v.SetDefault("fetch-timeout", model.DefaultFetchTimeout)
	v.SetDefault("prefetch-threshold", model.DefaultPrefetchThreshold)
	v.SetDefault("follow-up", false)
	v.SetDefault("reverse-scroll-wheel", false)

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

	for key, value := range overrides {
		if value != "" {
			v.Set(key, value)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}

	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	switch cfg.Source {
	case fetcher.SourceAPI, fetcher.SourceBluesky, fetcher.SourceRSS:
	default:
		return cfg, fmt.Errorf("invalid source: %q (want api, bluesky or rss)", cfg.Source)
	}
	if cfg.Source == fetcher.SourceRSS && cfg.RSSURL == "" {
		return cfg, errors.New("rss source requires rss-url")
	}
	if cfg.PageSize <= 0 || cfg.PageSize > model.MaxPageSize {
		return cfg, fmt.Errorf("invalid page-size: %d (want 1-%d)", cfg.PageSize, model.MaxPageSize)
	}
	if cfg.FetchTimeout <= 0 {
		return cfg, fmt.Errorf("invalid fetch-timeout: %s", cfg.FetchTimeout)
	}
	if cfg.PrefetchThreshold < 0 {
		return cfg, fmt.Errorf("invalid prefetch-threshold: %d", cfg.PrefetchThreshold)
	}
	if cfg.Hashtag = model.NormalizeHashtag(cfg.Hashtag); cfg.Hashtag == "" {
		return cfg, errors.New("invalid hashtag: empty")
	}

	return cfg, nil
}

func (c cliConfig) fetcherConfig() fetcher.Config {
	return fetcher.Config{
		Source:      c.Source,
		APIURL:      c.APIURL,
		BlueskyHost: c.BlueskyHost,
		RSSURL:      c.RSSURL,
		Hashtag:     c.Hashtag,
		PageSize:    c.PageSize,
	}
}
