package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/confeed/internal/duckdb"
	"github.com/tinytelemetry/confeed/internal/httpserver"
	"github.com/tinytelemetry/confeed/internal/ingest"
	"github.com/tinytelemetry/confeed/internal/journal"
	"github.com/tinytelemetry/confeed/internal/model"
)

// runServer starts headless tweet ingestion with the HTTP API.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger("confeed.log")
	defer cleanupLogger()

	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	defer store.Close()

	seeded, err := importSeedFile(store, cfg.SeedFile)
	if err != nil {
		return err
	}

	bufConf := duckdb.InsertBufferConfig{
		BatchSize:      cfg.InsertBatchSize,
		FlushInterval:  cfg.InsertFlushInterval,
		FlushQueueSize: cfg.InsertFlushQueue,
	}

	var recovered int
	if cfg.JournalEnabled {
		j, n, err := openIngestJournal(cfg.JournalPath, store, cfg.InsertBatchSize)
		if err != nil {
			return err
		}
		// Deferred before the buffer's Stop so it closes after the final flush.
		defer func() {
			if err := j.Close(); err != nil {
				log.Printf("server: close journal: %v", err)
			}
		}()
		bufConf.Journal = j
		recovered = n
	}

	// Create insert buffer for batched DuckDB writes
	insertBuffer := duckdb.NewInsertBuffer(store, bufConf)
	defer insertBuffer.Stop()

	retentionCleaner := duckdb.NewRetentionCleaner(store, duckdb.RetentionConfig{
		RetentionDays: cfg.RetentionDays,
	})
	if retentionCleaner != nil {
		defer retentionCleaner.Stop()
	}

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, store, insertBuffer, httpserver.Config{
			SearchRate:  cfg.SearchRate,
			SearchBurst: cfg.SearchBurst,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	plugins := buildInputPlugins(InputPluginConfig{
		TCPEnabled: cfg.TCPEnabled,
		TCPAddr:    cfg.TCPAddr,
	})
	sources := buildSources(ctx, plugins)

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()

	processor, err := ingest.NewEnvelopeProcessor(cfg.Processor, insertBuffer, "")
	if err != nil {
		mux.Stop()
		return err
	}

	printStartupBanner(cfg, startupInfo{
		sources:   sourceNames(sources),
		processor: processor.Name(),
		seeded:    seeded,
		recovered: recovered,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Ingestion loop
	if mux.HasSources() {
		g.Go(func() error {
			for env := range mux.Lines() {
				processor.ProcessEnvelope(env)
			}
			return nil
		})
	}

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	mux.Stop()

	stats := processor.Stats()
	log.Printf("server: ingest stopped, accepted=%d skipped=%d buffered=%d per-source=%v",
		stats.Accepted, stats.Skipped, insertBuffer.Added(), mux.Forwarded())

	signal.Stop(sigCh)
	return nil
}

// importSeedFile stores the tweets of a YAML seed file before ingestion starts.
// Already stored IDs are ignored, so restarting with the same seed is safe.
func importSeedFile(store model.TweetWriter, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	tweets, err := ingest.LoadSeedFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load seed file: %w", err)
	}
	if len(tweets) == 0 {
		return 0, nil
	}
	if err := store.InsertTweetBatch(tweets); err != nil {
		return 0, fmt.Errorf("failed to import seed file: %w", err)
	}
	log.Printf("server: imported %d seed tweets from %s", len(tweets), path)
	return len(tweets), nil
}

// openIngestJournal opens the ingest journal and stores any tweets a previous
// run accepted but never flushed.
func openIngestJournal(path string, store model.TweetWriter, batchSize int) (*journal.Journal, int, error) {
	j, err := journal.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open ingest journal: %w", err)
	}
	n, err := j.Recover(store, batchSize)
	if err != nil {
		_ = j.Close()
		return nil, 0, fmt.Errorf("failed to replay ingest journal: %w", err)
	}
	return j, n, nil
}

func configureRuntimeLogger(name string) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "confeed")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

type startupInfo struct {
	sources   []string
	processor string
	seeded    int
	recovered int
}

func printStartupBanner(cfg appConfig, info startupInfo) {
	fmt.Println(renderStartupBanner(cfg, info))
}

func renderStartupBanner(cfg appConfig, info startupInfo) string {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔═╗╔╗╔╔═╗╔═╗╔═╗╔╦╗
    ║  ║ ║║║║╠╣ ║╣ ║╣  ║║
    ╚═╝╚═╝╝╚╝╚  ╚═╝╚═╝═╩╝`)

	separator := dim.Render("    ─────────────────────────────────")

	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	if cfg.TCPEnabled {
		lines = append(lines, fmt.Sprintf("    %s  TCP Ingest     %s", check, cyan.Render(cfg.TCPAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  TCP Ingest     %s", dot, dim.Render("disabled")))
	}
	if len(info.sources) > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Inputs         %s", check, dim.Render(strings.Join(info.sources, ", "))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Inputs         %s", dot, dim.Render("none (HTTP only)")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, fmt.Sprintf("    %s  Storage        %s", check, dim.Render(shortenPath(cfg.DBPath))))
	if cfg.RetentionDays > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", check, dim.Render(fmt.Sprintf("%d days", cfg.RetentionDays))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Retention      %s", dot, dim.Render("disabled")))
	}
	if cfg.SeedFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  Seed           %s", check, dim.Render(fmt.Sprintf("%d tweets from %s", info.seeded, shortenPath(cfg.SeedFile)))))
	}
	if cfg.JournalEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Journal        %s", check, dim.Render(fmt.Sprintf("%s (%d recovered)", shortenPath(cfg.JournalPath), info.recovered))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Journal        %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"), "")
	lines = append(lines, fmt.Sprintf("    %s  Processor      %s", check, dim.Render(info.processor)))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	return strings.Join(lines, "\n")
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
