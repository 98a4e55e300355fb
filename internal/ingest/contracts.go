package ingest

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/confeed/internal/model"
)

const (
	// ProcessorModeParse decodes one JSON tweet per line (default).
	ProcessorModeParse = "parse"
	// ProcessorModePlain treats each line as tweet text, optionally "@user: text".
	ProcessorModePlain = "plain"
)

// TweetSink receives normalized tweets. *duckdb.InsertBuffer satisfies it.
type TweetSink interface {
	Add(tweet *model.Tweet)
}

// EnvelopeProcessor consumes source-tagged ingest lines and emits tweets.
type EnvelopeProcessor interface {
	Name() string
	ProcessEnvelope(model.IngestEnvelope) *ProcessResult
	Stats() Stats
}

// ProcessResult holds the outcome of processing one line.
// Tweet is nil when the line was skipped; Err says why.
type ProcessResult struct {
	Tweet *model.Tweet
	Err   error
}

// Stats counts processed lines.
type Stats struct {
	Accepted int64
	Skipped  int64
}

// NewEnvelopeProcessor creates the processor for mode. An empty mode means parse.
func NewEnvelopeProcessor(mode string, sink TweetSink, sourceName string) (EnvelopeProcessor, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ProcessorModeParse:
		return NewProcessor(sink, sourceName), nil
	case ProcessorModePlain:
		return NewPlainProcessor(sink, sourceName), nil
	default:
		return nil, fmt.Errorf("ingest: unknown processor mode %q", mode)
	}
}
