package ingest

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/confeed/internal/model"
)

// anonymousUser is the handle given to plain lines without an "@user:" prefix.
const anonymousUser = "anonymous"

// PlainProcessor turns each non-blank line into a tweet without JSON parsing.
// A line of the form "@user: text" sets the author.
type PlainProcessor struct {
	mu         sync.RWMutex
	sink       TweetSink
	sourceName string

	accepted atomic.Int64
	skipped  atomic.Int64
}

// NewPlainProcessor creates a plain-text processor.
func NewPlainProcessor(sink TweetSink, sourceName string) *PlainProcessor {
	return &PlainProcessor{
		sink:       sink,
		sourceName: sourceName,
	}
}

func (p *PlainProcessor) Name() string { return ProcessorModePlain }

func (p *PlainProcessor) Stats() Stats {
	return Stats{Accepted: p.accepted.Load(), Skipped: p.skipped.Load()}
}

// ProcessEnvelope processes one source-tagged line.
func (p *PlainProcessor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	if strings.TrimSpace(env.Line) == "" {
		return nil
	}

	source := env.Source
	if source == "" {
		source = p.getSourceName()
	}

	user, text := anonymousUser, env.Line
	if rest, ok := strings.CutPrefix(strings.TrimSpace(env.Line), "@"); ok {
		if handle, body, found := strings.Cut(rest, ":"); found && handle != "" && !strings.ContainsAny(handle, " \t") {
			user, text = handle, body
		}
	}

	tweet := &model.Tweet{FromUser: user, Text: text}
	if err := Normalize(tweet, source, time.Now()); err != nil {
		p.skipped.Add(1)
		log.Printf("ingest: skipping %s line: %v", source, err)
		return &ProcessResult{Err: err}
	}
	tweet.Source = source

	p.accepted.Add(1)
	if p.sink != nil {
		p.sink.Add(tweet)
	}
	return &ProcessResult{Tweet: tweet}
}

// SetSourceName updates the default source name for untagged lines.
func (p *PlainProcessor) SetSourceName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceName = name
}

func (p *PlainProcessor) getSourceName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sourceName
}
