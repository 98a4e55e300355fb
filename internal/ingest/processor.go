package ingest

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinytelemetry/confeed/internal/model"
)

// Processor parses JSON tweet lines and routes them to a sink.
// Pretty-printed objects spanning several lines are accumulated until their
// braces balance.
type Processor struct {
	sink       TweetSink
	mu         sync.Mutex
	sourceName string
	now        func() time.Time

	jsonBuffer   strings.Builder
	jsonDepth    int
	inJSONObject bool

	accepted atomic.Int64
	skipped  atomic.Int64
}

// NewProcessor creates a JSON tweet processor.
func NewProcessor(sink TweetSink, sourceName string) *Processor {
	return &Processor{
		sink:       sink,
		sourceName: sourceName,
		now:        time.Now,
	}
}

func (p *Processor) Name() string { return ProcessorModeParse }

// Stats returns the accepted and skipped counts so far.
func (p *Processor) Stats() Stats {
	return Stats{Accepted: p.accepted.Load(), Skipped: p.skipped.Load()}
}

// ProcessLine processes an untagged line using the processor source name.
func (p *Processor) ProcessLine(line string) *ProcessResult {
	return p.ProcessEnvelope(model.IngestEnvelope{Line: line})
}

// ProcessEnvelope processes one source-tagged line. It returns nil while a
// multi-line object is still being accumulated or for blank lines.
func (p *Processor) ProcessEnvelope(env model.IngestEnvelope) *ProcessResult {
	p.mu.Lock()
	source := env.Source
	if source == "" {
		source = p.sourceName
	}
	complete, ok := p.accumulate(env.Line)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return p.processEntry(complete, source)
}

// accumulate returns a complete JSON candidate once one is available.
// Callers hold p.mu.
func (p *Processor) accumulate(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !p.inJSONObject {
		if trimmed == "" {
			return "", false
		}
		if !strings.HasPrefix(trimmed, "{") {
			return line, true
		}
		p.inJSONObject = true
		p.jsonBuffer.Reset()
		p.jsonDepth = 0
	}

	p.jsonBuffer.WriteString(line)
	p.jsonBuffer.WriteString("\n")
	p.jsonDepth += CountJSONDepth(line)
	if p.jsonDepth > 0 {
		return "", false
	}

	complete := strings.TrimSpace(p.jsonBuffer.String())
	p.resetJSONAccumulation()
	return complete, true
}

func (p *Processor) processEntry(line, source string) *ProcessResult {
	tweet, err := ParseJSONTweet(line)
	if err == nil {
		err = Normalize(tweet, source, p.now())
	}
	if err != nil {
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

// CountJSONDepth counts the net change in JSON nesting depth for a line.
func CountJSONDepth(line string) int {
	depth := 0
	inString := false
	escaped := false

	for _, char := range line {
		if escaped {
			escaped = false
			continue
		}

		switch char {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				depth++
			}
		case '}', ']':
			if !inString {
				depth--
			}
		}
	}

	return depth
}

func (p *Processor) resetJSONAccumulation() {
	p.inJSONObject = false
	p.jsonDepth = 0
	p.jsonBuffer.Reset()
}

// SetSourceName updates the default source name for untagged lines.
func (p *Processor) SetSourceName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sourceName = name
}
