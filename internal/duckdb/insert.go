package duckdb

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tinytelemetry/confeed/internal/model"
)

// DefaultFlushQueueSize is the number of batches that can be queued for async flushing.
const DefaultFlushQueueSize = 64

// Journal durably records tweets before they are buffered. Commit marks every
// entry up to seq as stored.
type Journal interface {
	Append(t *Tweet) (uint64, error)
	Commit(seq uint64) error
}

// pendingBatch is a slice of buffered tweets plus the highest journal
// sequence it covers. maxSeq is zero when nothing in it was journaled.
type pendingBatch struct {
	tweets []*Tweet
	maxSeq uint64
}

// InsertBuffer batches tweets and flushes them to the store asynchronously.
// Add never blocks on DuckDB writes unless the flush queue is full.
type InsertBuffer struct {
	writer        model.TweetWriter
	journal       Journal
	mu            sync.Mutex
	pending       pendingBatch
	flushChan     chan pendingBatch
	maxBatch      int
	flushInterval time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	tickWg        sync.WaitGroup
	stopOnce      sync.Once

	added             atomic.Int64
	backpressureCount atomic.Int64
	lastBPLog         atomic.Int64 // unix seconds of the last backpressure log
}

// InsertBufferConfig holds tunable parameters for the insert buffer.
type InsertBufferConfig struct {
	BatchSize      int
	FlushInterval  time.Duration
	FlushQueueSize int
	// Journal, when set, records each tweet in Add and is committed after
	// the batch holding it is stored.
	Journal Journal
}

// NewInsertBuffer creates an insert buffer that flushes to writer.
func NewInsertBuffer(writer model.TweetWriter, conf ...InsertBufferConfig) *InsertBuffer {
	batchSize := 500
	flushInterval := 250 * time.Millisecond
	flushQueueSize := DefaultFlushQueueSize
	var journal Journal
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		if conf[0].FlushInterval > 0 {
			flushInterval = conf[0].FlushInterval
		}
		if conf[0].FlushQueueSize > 0 {
			flushQueueSize = conf[0].FlushQueueSize
		}
		journal = conf[0].Journal
	}

	b := &InsertBuffer{
		writer:        writer,
		journal:       journal,
		pending:       pendingBatch{tweets: make([]*Tweet, 0, batchSize)},
		flushChan:     make(chan pendingBatch, flushQueueSize),
		maxBatch:      batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}

	b.wg.Add(1)
	go b.flushWorker()

	b.wg.Add(1)
	b.tickWg.Add(1)
	go b.tickLoop()

	return b
}

func (b *InsertBuffer) tickLoop() {
	defer b.wg.Done()
	defer b.tickWg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.drainPending()
		case <-b.done:
			b.drainPending()
			return
		}
	}
}

// logBackpressure logs at most once per 10 seconds.
func (b *InsertBuffer) logBackpressure() {
	count := b.backpressureCount.Add(1)
	now := time.Now().Unix()
	last := b.lastBPLog.Load()
	if now-last >= 10 && b.lastBPLog.CompareAndSwap(last, now) {
		log.Printf("duckdb: backpressure, %d inline flushes (flush queue full)", count)
	}
}

// swapPending returns the pending batch and starts a new one. b.mu must be held.
func (b *InsertBuffer) swapPending() pendingBatch {
	batch := b.pending
	b.pending = pendingBatch{tweets: make([]*Tweet, 0, b.maxBatch)}
	return batch
}

func (b *InsertBuffer) drainPending() {
	b.mu.Lock()
	if len(b.pending.tweets) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.swapPending()
	b.mu.Unlock()
	b.enqueue(batch, "inline")
}

// enqueue hands batch to the flush worker, flushing inline when the queue is full.
func (b *InsertBuffer) enqueue(batch pendingBatch, how string) {
	select {
	case b.flushChan <- batch:
	default:
		b.logBackpressure()
		b.flush(batch, how)
	}
}

func (b *InsertBuffer) flushWorker() {
	defer b.wg.Done()
	for batch := range b.flushChan {
		b.flush(batch, "async")
	}
}

// flush writes batch and commits its journal entries once stored. A failed
// batch stays in the journal for replay on the next start.
func (b *InsertBuffer) flush(batch pendingBatch, how string) {
	if err := b.writer.InsertTweetBatch(batch.tweets); err != nil {
		log.Printf("duckdb flush error (%s): %v", how, err)
		return
	}
	if b.journal == nil || batch.maxSeq == 0 {
		return
	}
	if err := b.journal.Commit(batch.maxSeq); err != nil {
		log.Printf("duckdb: journal commit seq=%d: %v", batch.maxSeq, err)
	}
}

// Add queues a tweet for batch insertion. A missing ID is filled with a UUID
// so a journaled tweet replays under the same ID.
func (b *InsertBuffer) Add(t *Tweet) {
	if t == nil {
		return
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	b.added.Add(1)

	var seq uint64
	if b.journal != nil {
		var err error
		if seq, err = b.journal.Append(t); err != nil {
			log.Printf("duckdb: journal append (id=%s): %v", t.ID, err)
			seq = 0
		}
	}

	b.mu.Lock()
	b.pending.tweets = append(b.pending.tweets, t)
	b.pending.maxSeq = max(b.pending.maxSeq, seq)
	var batch pendingBatch
	full := len(b.pending.tweets) >= b.maxBatch
	if full {
		batch = b.swapPending()
	}
	b.mu.Unlock()

	if full {
		b.enqueue(batch, "overflow-inline")
	}
}

// Added returns the number of tweets accepted by Add.
func (b *InsertBuffer) Added() int64 {
	return b.added.Load()
}

// Stop flushes remaining tweets and waits for all writes to complete.
// Add must not be called after Stop. The journal is left open for its owner
// to close.
func (b *InsertBuffer) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		// tickLoop's final drain must land before flushChan closes.
		b.tickWg.Wait()
		close(b.flushChan)
		b.wg.Wait()
	})
}

// InsertTweetBatch stores tweets in a single transaction, ignoring IDs that
// already exist. If the batch fails it is retried one tweet at a time so a
// single bad row does not drop the rest.
func (s *Store) InsertTweetBatch(tweets []*Tweet) error {
	tweets = dedupeTweets(tweets)
	if len(tweets) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.insertBatchTx(ctx, tweets)
	if err == nil {
		return nil
	}
	log.Printf("duckdb: batch insert failed, retrying per tweet: %v", err)

	var failed int
	for _, t := range tweets {
		if rerr := s.insertBatchTx(ctx, []*Tweet{t}); rerr != nil {
			failed++
			log.Printf("duckdb: dropping tweet (id=%s user=%s): %v", t.ID, t.FromUser, rerr)
		}
	}
	if failed == len(tweets) {
		return fmt.Errorf("insert tweets: all %d failed: %w", failed, err)
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d tweets dropped", failed, len(tweets))
	}
	return nil
}

// dedupeTweets drops nil entries, tweets without an ID, and repeated IDs,
// keeping the first occurrence.
func dedupeTweets(tweets []*Tweet) []*Tweet {
	seen := make(map[string]struct{}, len(tweets))
	out := tweets[:0:0]
	for _, t := range tweets {
		if t == nil || t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out
}

// tweetTags returns t's distinct hashtags, lowercased without '#'. Tags are
// derived from the text when t carries none.
func tweetTags(t *Tweet) []string {
	if len(t.Hashtags) == 0 {
		return model.Hashtags(t.Text)
	}
	seen := make(map[string]bool, len(t.Hashtags))
	var tags []string
	for _, raw := range t.Hashtags {
		tag := strings.TrimPrefix(model.NormalizeHashtag(raw), "#")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

func (s *Store) insertBatchTx(ctx context.Context, tweets []*Tweet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	tweetStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tweets (id, from_user, from_user_name, text, created_at, profile_image_url, source) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tweetStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tweet_hashtags (tweet_id, tag, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tagStmt.Close()

	for _, t := range tweets {
		created := t.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		created = created.UTC()

		if _, err := tweetStmt.ExecContext(ctx,
			t.ID, t.FromUser, t.FromUserName, t.Text, created, t.ProfileImageURL, t.Source,
		); err != nil {
			return fmt.Errorf("tweet insert: %w", err)
		}

		for _, tag := range tweetTags(t) {
			if _, err := tagStmt.ExecContext(ctx, t.ID, tag, created); err != nil {
				return fmt.Errorf("hashtag insert: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
