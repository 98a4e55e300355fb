// Package journal keeps a durable append-only record of ingested tweets so
// tweets accepted but not yet flushed to DuckDB survive a crash.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tinytelemetry/confeed/internal/model"
)

const (
	defaultFileMode = 0644
	defaultDirMode  = 0755

	// DefaultRecoverBatch is the batch size Recover uses when given <= 0.
	DefaultRecoverBatch = 500
)

type entry struct {
	Seq   uint64      `json:"seq"`
	Tweet model.Tweet `json:"tweet"`
}

// Journal stores one JSON entry per line and tracks commit progress in a
// sidecar ".commit" file.
type Journal struct {
	mu         sync.Mutex
	path       string
	commitPath string
	file       *os.File
	nextSeq    uint64
	committed  uint64
}

// Open creates or opens a journal at path. On startup it drops committed
// entries and ignores a partially written trailing line.
func Open(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}

	commitPath := path + ".commit"
	committed, err := readCommitted(commitPath)
	if err != nil {
		return nil, err
	}

	maxSeq, err := compact(path, committed)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, defaultFileMode)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}

	return &Journal{
		path:       path,
		commitPath: commitPath,
		file:       f,
		nextSeq:    max(maxSeq, committed) + 1,
		committed:  committed,
	}, nil
}

// Append persists one tweet and returns its sequence number.
func (j *Journal) Append(t *model.Tweet) (uint64, error) {
	if t == nil {
		return 0, errors.New("journal: nil tweet")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return 0, errors.New("journal: closed")
	}

	e := entry{Seq: j.nextSeq, Tweet: *t}
	e.Tweet.Hashtags = append([]string(nil), t.Hashtags...)
	line, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("journal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return 0, fmt.Errorf("journal: write entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync entry: %w", err)
	}
	j.nextSeq++
	return e.Seq, nil
}

// Commit marks all entries up to seq as stored. Lower sequence numbers than
// the current commit point are ignored.
func (j *Journal) Commit(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seq <= j.committed {
		return nil
	}
	if err := writeCommitted(j.commitPath, seq); err != nil {
		return err
	}
	j.committed = seq
	return nil
}

// Committed returns the highest committed sequence number.
func (j *Journal) Committed() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.committed
}

// Replay calls fn for each uncommitted entry in sequence order.
func (j *Journal) Replay(fn func(seq uint64, t *model.Tweet) error) error {
	if fn == nil {
		return errors.New("journal: replay callback is nil")
	}

	j.mu.Lock()
	path, committed := j.path, j.committed
	j.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("journal: open for replay: %w", err)
	}
	defer f.Close()

	return scanEntries(f, func(e entry, _ []byte) error {
		if e.Seq <= committed {
			return nil
		}
		return fn(e.Seq, &e.Tweet)
	})
}

// Recover writes every uncommitted tweet to w in batches and commits each
// batch once stored. It returns the number of tweets recovered.
func (j *Journal) Recover(w model.TweetWriter, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultRecoverBatch
	}

	batch := make([]*model.Tweet, 0, batchSize)
	var batchMax uint64
	recovered := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.InsertTweetBatch(batch); err != nil {
			return err
		}
		if err := j.Commit(batchMax); err != nil {
			return err
		}
		recovered += len(batch)
		batch = make([]*model.Tweet, 0, batchSize)
		return nil
	}

	err := j.Replay(func(seq uint64, t *model.Tweet) error {
		copied := *t
		batch = append(batch, &copied)
		batchMax = max(batchMax, seq)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return recovered, fmt.Errorf("journal: recover: %w", err)
	}
	if recovered > 0 {
		log.Printf("journal: recovered %d uncommitted tweets", recovered)
	}
	return recovered, nil
}

// Close closes the underlying journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// scanEntries calls fn for each complete, well-formed line of r. It stops
// quietly at a partial trailing line or the first malformed entry.
func scanEntries(r io.Reader, fn func(e entry, line []byte) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("journal: read: %w", err)
		}
		if len(line) == 0 || line[len(line)-1] != '\n' {
			return nil
		}

		var e entry
		if json.Unmarshal(line, &e) != nil {
			return nil
		}
		if ferr := fn(e, line); ferr != nil {
			return ferr
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
}

func readCommitted(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("journal: read commit file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("journal: parse commit seq: %w", err)
	}
	return seq, nil
}

// writeCommitted replaces the commit file atomically.
func writeCommitted(path string, seq uint64) error {
	return writeFileAtomic(path, func(f *os.File) error {
		_, err := f.WriteString(strconv.FormatUint(seq, 10) + "\n")
		return err
	})
}

// compact rewrites the journal without committed entries and returns the
// highest sequence number seen.
func compact(path string, committed uint64) (uint64, error) {
	src, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, defaultFileMode)
	if err != nil {
		return 0, fmt.Errorf("journal: open source for compact: %w", err)
	}
	defer src.Close()

	var maxSeq uint64
	err = writeFileAtomic(path, func(dst *os.File) error {
		return scanEntries(src, func(e entry, line []byte) error {
			maxSeq = max(maxSeq, e.Seq)
			if e.Seq <= committed {
				return nil
			}
			_, werr := dst.Write(line)
			return werr
		})
	})
	if err != nil {
		return 0, fmt.Errorf("journal: compact: %w", err)
	}
	return maxSeq, nil
}

// writeFileAtomic fills a temp file with write, syncs it and renames it over path.
func writeFileAtomic(path string, write func(f *os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_RDWR, defaultFileMode)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", filepath.Base(tmp), err)
	}
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := write(f); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("journal: sync %s: %w", filepath.Base(tmp), err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: close %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("journal: rename %s: %w", filepath.Base(tmp), err)
	}
	return nil
}
