package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultTimeout bounds a single page fetch.
const DefaultTimeout = 15 * time.Second

// Dispatcher runs fn on the controller's foreground context. It returns false
// when fn could not be scheduled, e.g. because the UI loop has exited.
type Dispatcher func(fn func()) bool

// Immediate runs fn on the calling goroutine. It is the default Dispatcher
// and only suits sinks that are safe to call from any goroutine.
func Immediate(fn func()) bool {
	fn()
	return true
}

type options struct {
	dispatch     Dispatcher
	timeout      time.Duration
	followUp     bool
	logger       *log.Logger
	errorMessage func(error) string
}

// Option configures a Controller.
type Option func(*options)

// WithDispatcher routes fetch completions through d instead of running them
// on the fetch goroutine.
func WithDispatcher(d Dispatcher) Option {
	return func(o *options) {
		if d != nil {
			o.dispatch = d
		}
	}
}

// WithTimeout bounds each fetch. A non-positive value disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithFollowUp makes the controller issue one more fetch after a successful
// completion if any trigger was dropped while that fetch was in flight.
func WithFollowUp() Option {
	return func(o *options) { o.followUp = true }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithErrorMessage sets how a fetch error is rendered for ShowTransientError.
func WithErrorMessage(fn func(error) string) Option {
	return func(o *options) {
		if fn != nil {
			o.errorMessage = fn
		}
	}
}

// Controller drives a Fetcher and a Sink for one feed.
//
// Triggers may be called from any goroutine, but they are meant to be called
// from the same foreground context the Dispatcher delivers completions on.
// Sink methods must not call Close.
type Controller[T any] struct {
	fetcher Fetcher[T]
	sink    Sink[T]
	opts    options

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	items    []T
	cursor   Cursor
	inFlight bool
	seq      uint64 // id of the latest fetch begun
	settled  uint64 // id of the latest fetch whose completion was accepted
	dropped  bool   // a trigger arrived while inFlight
	closed   bool

	sinkMu   sync.Mutex
	detached bool

	wg sync.WaitGroup
}

// NewController returns an idle controller positioned at StartCursor.
//
// Without WithDispatcher, completions and every Sink call run on the fetch
// goroutine. A UI sink that must only be touched from its own loop has to
// pass WithDispatcher with a function that hands work to that loop.
func NewController[T any](fetcher Fetcher[T], sink Sink[T], opts ...Option) *Controller[T] {
	o := options{
		dispatch:     Immediate,
		timeout:      DefaultTimeout,
		logger:       log.Default(),
		errorMessage: func(err error) string { return err.Error() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if sink == nil {
		sink = NopSink[T]{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller[T]{
		fetcher: fetcher,
		sink:    sink,
		opts:    o,
		ctx:     ctx,
		cancel:  cancel,
		cursor:  StartCursor,
	}
}

// OnScrollNearEnd requests the next page because the visible window is close
// to the end of the list. It reports whether a fetch was started.
func (c *Controller[T]) OnScrollNearEnd() bool {
	return c.begin("scroll")
}

// OnRefreshRequested requests the next page on behalf of an explicit user
// refresh or the initial load. It follows the same single-flight rule as
// OnScrollNearEnd.
func (c *Controller[T]) OnRefreshRequested() bool {
	return c.begin("refresh")
}

func (c *Controller[T]) begin(reason string) bool {
	c.mu.Lock()
	if c.closed || c.cursor.IsEnd() {
		c.mu.Unlock()
		return false
	}
	if c.inFlight {
		c.dropped = true
		c.mu.Unlock()
		return false
	}
	c.inFlight = true
	c.seq++
	seq, cursor := c.seq, c.cursor

	var ctx context.Context
	var cancel context.CancelFunc
	if c.opts.timeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.opts.timeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.emit(func(s Sink[T]) { s.ShowLoadingPlaceholder() })

	go c.run(ctx, cancel, seq, cursor, reason)
	return true
}

func (c *Controller[T]) run(ctx context.Context, cancel context.CancelFunc, seq uint64, cursor Cursor, reason string) {
	defer c.wg.Done()

	page, err := c.fetcher.Fetch(ctx, cursor)
	ctxErr := ctx.Err()
	cancel()

	if err != nil {
		err = c.wrapFetchError(cursor, err, ctxErr)
	}

	res := Result[T]{Page: page, Err: err, seq: seq}
	if !c.opts.dispatch(func() { c.OnFetchCompleted(res) }) {
		c.opts.logger.Printf("feed: completion of fetch %d (%s) not delivered, releasing", seq, reason)
		c.abandon(seq)
	}
}

func (c *Controller[T]) wrapFetchError(cursor Cursor, err, ctxErr error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(ctxErr, context.Canceled):
		err = fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return &FetchError{Cursor: cursor, Err: err}
}

// OnFetchCompleted applies the outcome of the in-flight fetch. Results that
// do not belong to the in-flight fetch, or that were already applied, are
// ignored. After Close the feed state is still updated but the sink is not
// called.
func (c *Controller[T]) OnFetchCompleted(res Result[T]) {
	c.mu.Lock()
	if !c.inFlight || res.seq != c.seq || c.settled == res.seq {
		c.mu.Unlock()
		return
	}
	c.settled = res.seq
	c.mu.Unlock()

	c.emit(func(s Sink[T]) { s.HideLoadingPlaceholder() })

	if res.Err != nil {
		c.opts.logger.Printf("feed: %v", res.Err)
		msg := c.opts.errorMessage(res.Err)
		c.emit(func(s Sink[T]) { s.ShowTransientError(msg) })
	} else {
		items := append([]T(nil), res.Page.Items...)
		next := res.Page.Next
		if next.IsStart() {
			next = EndCursor
		}
		c.mu.Lock()
		c.items = append(c.items, items...)
		c.cursor = next
		c.mu.Unlock()
		c.emit(func(s Sink[T]) { s.AppendItems(items) })
	}

	c.mu.Lock()
	c.inFlight = false
	again := c.opts.followUp && c.dropped && res.Err == nil && !c.closed
	c.dropped = false
	c.mu.Unlock()

	if again {
		c.begin("follow-up")
	}
}

// abandon releases the single-flight slot for a fetch whose completion could
// not be delivered.
func (c *Controller[T]) abandon(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight && c.seq == seq && c.settled != seq {
		c.settled = seq
		c.inFlight = false
		c.dropped = false
	}
}

func (c *Controller[T]) emit(fn func(Sink[T])) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()
	if c.detached {
		return
	}
	fn(c.sink)
}

// Snapshot returns a copy of the current feed state.
func (c *Controller[T]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State[T]{
		Items:    append([]T(nil), c.items...),
		Cursor:   c.cursor,
		InFlight: c.inFlight,
	}
}

// Close detaches the sink and cancels any in-flight fetch. No sink method is
// called once Close returns. Further triggers are ignored.
func (c *Controller[T]) Close() {
	c.sinkMu.Lock()
	c.detached = true
	c.sinkMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
}

// Wait blocks until every fetch goroutine started by c has returned.
func (c *Controller[T]) Wait() {
	c.wg.Wait()
}
