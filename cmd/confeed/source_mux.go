package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/confeed/internal/model"
)

// DefaultMuxBuffer is the default channel buffer size for the source multiplexer.
const DefaultMuxBuffer = 10_000

// SourceMultiplexer merges several line sources into one read-only stream.
// Blank lines are dropped before they reach the output.
type SourceMultiplexer struct {
	ctx    context.Context
	cancel context.CancelFunc

	sources   []NamedLineSource
	lines     chan model.IngestEnvelope
	forwarded []atomic.Int64 // per source, same order as sources

	startOnce sync.Once
	stopOnce  sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSourceMultiplexer(parent context.Context, sources []NamedLineSource, buffer int) *SourceMultiplexer {
	if buffer <= 0 {
		buffer = DefaultMuxBuffer
	}
	ctx, cancel := context.WithCancel(parent)
	return &SourceMultiplexer{
		ctx:       ctx,
		cancel:    cancel,
		sources:   sources,
		lines:     make(chan model.IngestEnvelope, buffer),
		forwarded: make([]atomic.Int64, len(sources)),
	}
}

// Start begins forwarding. The output closes once every source has closed.
func (m *SourceMultiplexer) Start() {
	m.startOnce.Do(func() {
		if len(m.sources) == 0 {
			m.closeOutput()
			return
		}

		for i := range m.sources {
			m.wg.Add(1)
			go m.forward(i)
		}

		go func() {
			m.wg.Wait()
			m.closeOutput()
		}()
	})
}

// Stop cancels forwarding, stops every source and closes the output.
func (m *SourceMultiplexer) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		for _, src := range m.sources {
			src.Stop()
		}
		m.wg.Wait()
		m.closeOutput()
	})
}

func (m *SourceMultiplexer) HasSources() bool {
	return len(m.sources) > 0
}

func (m *SourceMultiplexer) Lines() <-chan model.IngestEnvelope {
	return m.lines
}

// Forwarded returns how many lines each source has contributed, keyed by name.
func (m *SourceMultiplexer) Forwarded() map[string]int64 {
	out := make(map[string]int64, len(m.sources))
	for i, src := range m.sources {
		out[src.Name()] += m.forwarded[i].Load()
	}
	return out
}

func (m *SourceMultiplexer) forward(idx int) {
	defer m.wg.Done()

	src := m.sources[idx]
	sourceLines := src.Lines()
	for {
		select {
		case <-m.ctx.Done():
			return
		case env, ok := <-sourceLines:
			if !ok {
				return
			}
			if strings.TrimSpace(env.Line) == "" {
				continue
			}
			if env.Source == "" {
				env.Source = src.Name()
			}
			select {
			case m.lines <- env:
				m.forwarded[idx].Add(1)
			case <-m.ctx.Done():
				return
			}
		}
	}
}

func (m *SourceMultiplexer) closeOutput() {
	m.closeOnce.Do(func() {
		close(m.lines)
	})
}
