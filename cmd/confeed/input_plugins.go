package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/tinytelemetry/confeed/internal/linesource"
	"github.com/tinytelemetry/confeed/internal/tcpserver"
)

// NamedLineSource aliases the shared source abstraction to keep app-layer APIs explicit.
type NamedLineSource = linesource.LineSource

// InputSourcePlugin is a small plugin primitive for wiring tweet inputs.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (NamedLineSource, error)
}

// InputPluginConfig defines runtime input selection.
type InputPluginConfig struct {
	TCPEnabled bool
	TCPAddr    string
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	return []InputSourcePlugin{
		tcpInputPlugin{addr: cfg.TCPAddr, enabled: cfg.TCPEnabled},
		stdinInputPlugin{},
	}
}

// buildSources starts every enabled plugin. A plugin that fails to start is
// logged and skipped so the remaining inputs still run.
func buildSources(ctx context.Context, plugins []InputSourcePlugin) []NamedLineSource {
	sources := make([]NamedLineSource, 0, len(plugins))
	for _, plugin := range plugins {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Printf("input: plugin %q failed to start: %v", plugin.Name(), err)
			continue
		}
		sources = append(sources, src)
	}
	return sources
}

func sourceNames(sources []NamedLineSource) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return names
}

type tcpInputPlugin struct {
	addr    string
	enabled bool
}

func (p tcpInputPlugin) Name() string { return "tcp" }

func (p tcpInputPlugin) Enabled() bool { return p.enabled }

func (p tcpInputPlugin) Build(_ context.Context) (NamedLineSource, error) {
	server := tcpserver.NewServer(p.addr)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start tcp server: %w", err)
	}
	return linesource.NewTCPSource(server), nil
}

type stdinInputPlugin struct{}

func (p stdinInputPlugin) Name() string { return "stdin" }

// Enabled reports whether stdin is piped rather than a terminal.
func (p stdinInputPlugin) Enabled() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

func (p stdinInputPlugin) Build(ctx context.Context) (NamedLineSource, error) {
	return linesource.NewStdinSource(ctx), nil
}
