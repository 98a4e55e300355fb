// Package linesource unifies the raw line inputs of the ingest service.
package linesource

import (
	"github.com/tinytelemetry/confeed/internal/model"
	"github.com/tinytelemetry/confeed/internal/tcpserver"
)

// LineSource is a unified interface for tweet line inputs (TCP, stdin).
type LineSource interface {
	Lines() <-chan model.IngestEnvelope // read-only channel of raw lines
	Stop()                              // graceful shutdown
	Name() string                       // "tcp", "stdin"
}

// TCPSource wraps a tcpserver.Server as a LineSource.
type TCPSource struct {
	server *tcpserver.Server
}

// NewTCPSource creates a TCPSource from an already-started TCP server.
func NewTCPSource(server *tcpserver.Server) *TCPSource {
	return &TCPSource{server: server}
}

func (t *TCPSource) Lines() <-chan model.IngestEnvelope { return t.server.Lines() }
func (t *TCPSource) Stop()                              { _ = t.server.Stop() }
func (t *TCPSource) Name() string                       { return "tcp" }
