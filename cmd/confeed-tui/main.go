package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/confeed/internal/fetcher"
	"github.com/tinytelemetry/confeed/internal/tui"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var source string
	var hashtag string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/confeed/config.yml)")
	flag.StringVar(&source, "source", "", "override feed source: api, bluesky or rss")
	flag.StringVar(&hashtag, "hashtag", "", "override the hashtag to follow")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("confeed-tui - Conference Hashtag Feed\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath, map[string]string{
		"source":  source,
		"hashtag": hashtag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	logger, cleanup := openLogger()
	defer cleanup()

	f, err := fetcher.New(cfg.fetcherConfig())
	if err != nil {
		return err
	}
	logger.Printf("tui: starting, source=%s hashtag=%s page-size=%d", cfg.Source, cfg.Hashtag, cfg.PageSize)

	feedPage := tui.NewFeedPage(tui.FeedConfig{
		Title:              cfg.Hashtag,
		Fetcher:            f,
		PrefetchThreshold:  cfg.PrefetchThreshold,
		FetchTimeout:       cfg.FetchTimeout,
		FollowUp:           cfg.FollowUp,
		ReverseScrollWheel: cfg.ReverseScrollWheel,
		Logger:             logger,
	})
	app := tui.NewApp(feedPage, tui.NewTweetPage())
	defer app.Close()

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// openLogger writes diagnostics to a file so they never reach the alt screen.
func openLogger() (*log.Logger, func()) {
	flags := log.LstdFlags | log.Lmicroseconds
	home, err := os.UserHomeDir()
	if err != nil {
		return log.New(os.Stderr, "", flags), func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "confeed")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return log.New(os.Stderr, "", flags), func() {}
	}

	f, err := os.OpenFile(filepath.Join(logDir, "confeed-tui.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stderr, "", flags), func() {}
	}

	logger := log.New(f, "", flags)
	log.SetOutput(f)
	return logger, func() { _ = f.Close() }
}
