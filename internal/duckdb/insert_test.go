package duckdb

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testTweet(i int) *Tweet {
	return &Tweet{
		ID:        fmt.Sprintf("t%d", i),
		FromUser:  "ada",
		Text:      "buffered #agileday",
		CreatedAt: time.Now(),
		Source:    "stdin",
	}
}

func TestInsertBuffer_AddAndStop(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	for i := 0; i < 10; i++ {
		buf.Add(testTweet(i))
	}
	buf.Stop()

	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != 10 {
		t.Errorf("after Stop, TotalTweetCount = %d, want 10", count)
	}
	if buf.Added() != 10 {
		t.Errorf("Added = %d, want 10", buf.Added())
	}
}

func TestInsertBuffer_BatchThreshold(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 50, FlushInterval: time.Hour})

	for i := 0; i < 120; i++ {
		buf.Add(testTweet(i))
	}
	buf.Stop()

	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != 120 {
		t.Errorf("after batch insert, TotalTweetCount = %d, want 120", count)
	}
}

func TestInsertBuffer_ConcurrentAdd(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	var wg sync.WaitGroup
	numGoroutines := 10
	perGoroutine := 50

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				buf.Add(testTweet(g*perGoroutine + i))
			}
		}(g)
	}

	wg.Wait()
	buf.Stop()

	expected := int64(numGoroutines * perGoroutine)
	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != expected {
		t.Errorf("concurrent insert TotalTweetCount = %d, want %d", count, expected)
	}
}

func TestInsertBuffer_FillsMissingID(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	tw := &Tweet{FromUser: "ada", Text: "no id", CreatedAt: time.Now()}
	buf.Add(tw)
	buf.Stop()

	if tw.ID == "" {
		t.Fatal("expected Add to assign an ID")
	}
	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("TotalTweetCount = %d, want 1", count)
	}
}

func TestInsertBuffer_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store)

	buf.Add(testTweet(1))
	buf.Stop()
	buf.Stop()

	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != 1 {
		t.Errorf("after double Stop, TotalTweetCount = %d, want 1", count)
	}
}

type countingWriter struct {
	mu      sync.Mutex
	batches int
	tweets  int
	err     error
}

func (w *countingWriter) InsertTweetBatch(tweets []*Tweet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches++
	w.tweets += len(tweets)
	return w.err
}

func TestInsertBuffer_WriterErrorIsLogged(t *testing.T) {
	w := &countingWriter{err: errors.New("disk full")}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 2})

	for i := 0; i < 5; i++ {
		buf.Add(testTweet(i))
	}
	buf.Stop()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tweets != 5 {
		t.Fatalf("writer saw %d tweets, want 5", w.tweets)
	}
	if w.batches < 3 {
		t.Fatalf("writer saw %d batches, want >= 3", w.batches)
	}
}

type memJournal struct {
	mu        sync.Mutex
	seq       uint64
	committed uint64
	appendErr error
}

func (j *memJournal) Append(*Tweet) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.appendErr != nil {
		return 0, j.appendErr
	}
	j.seq++
	return j.seq, nil
}

func (j *memJournal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.committed = max(j.committed, seq)
	return nil
}

func TestInsertBuffer_CommitsJournalAfterFlush(t *testing.T) {
	store := newTestStore(t)
	j := &memJournal{}
	buf := NewInsertBuffer(store, InsertBufferConfig{BatchSize: 4, Journal: j})

	for i := 0; i < 10; i++ {
		buf.Add(testTweet(i))
	}
	buf.Stop()

	if j.committed != 10 {
		t.Fatalf("journal committed = %d, want 10", j.committed)
	}
	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != 10 {
		t.Fatalf("TotalTweetCount = %d, want 10", count)
	}
}

func TestInsertBuffer_FailedFlushLeavesJournalUncommitted(t *testing.T) {
	w := &countingWriter{err: errors.New("disk full")}
	j := &memJournal{}
	buf := NewInsertBuffer(w, InsertBufferConfig{BatchSize: 2, Journal: j})

	for i := 0; i < 4; i++ {
		buf.Add(testTweet(i))
	}
	buf.Stop()

	if j.committed != 0 {
		t.Fatalf("journal committed = %d after failed flushes, want 0", j.committed)
	}
}

func TestInsertBuffer_JournalAppendFailureStillBuffers(t *testing.T) {
	store := newTestStore(t)
	j := &memJournal{appendErr: errors.New("read-only fs")}
	buf := NewInsertBuffer(store, InsertBufferConfig{Journal: j})

	buf.Add(testTweet(1))
	buf.Stop()

	count, err := store.TotalTweetCount()
	if err != nil {
		t.Fatalf("TotalTweetCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("TotalTweetCount = %d, want 1", count)
	}
	if j.committed != 0 {
		t.Fatalf("journal committed = %d, want 0", j.committed)
	}
}
