// Package collection keeps an in-memory snapshot of one entity table in
// step with the store: fetch everything, subscribe to the table's change
// stream, and refetch everything whenever anything changes.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joescharf/pmdash/internal/realtime"
)

// ErrUnmounted is returned by Refetch after Unmount.
var ErrUnmounted = errors.New("collection unmounted")

// FetchFunc loads the full collection.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Collection is a refetch-on-change snapshot of one table.
//
// The held list always equals the result of the most recently started fetch
// that has completed successfully. Results that arrive after a newer fetch
// has been applied, or after Unmount, are discarded.
type Collection[T any] struct {
	name   string
	fetch  FetchFunc[T]
	source realtime.Source
	filter realtime.Filter
	logger *slog.Logger

	mu      sync.Mutex
	items   []T
	loading bool
	err     error
	issued  uint64 // sequence of the last fetch started
	applied uint64 // sequence of the fetch whose result is held
	mounted bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	changes chan struct{}
}

// Option configures a Collection.
type Option func(*options)

type options struct {
	logger *slog.Logger
	name   string
}

// WithLogger routes sync diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithName labels log lines; it defaults to the table name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// New builds an unmounted collection for the stream f.
func New[T any](fetch FetchFunc[T], source realtime.Source, f realtime.Filter, opts ...Option) *Collection[T] {
	o := options{name: string(f.Table)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return &Collection[T]{
		name:    o.name,
		fetch:   fetch,
		source:  source,
		filter:  f,
		logger:  o.logger,
		changes: make(chan struct{}, 1),
	}
}

// Mount subscribes to the change stream and performs the initial fetch.
// Loading reports true until that fetch returns. The subscription stays
// live until Unmount or until ctx is cancelled.
func (c *Collection[T]) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return fmt.Errorf("%s: already mounted", c.name)
	}
	if c.closed {
		c.mu.Unlock()
		return ErrUnmounted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mounted = true
	c.loading = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	sub, err := c.source.Subscribe(ctx, c.filter)
	if err != nil {
		c.mu.Lock()
		c.loading = false
		c.err = err
		c.mu.Unlock()
		close(c.done)
		return fmt.Errorf("%s: subscribe: %w", c.name, err)
	}

	go c.listen(ctx, sub)

	err = c.Refetch(ctx)

	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
	return err
}

func (c *Collection[T]) listen(ctx context.Context, sub realtime.Subscription) {
	defer close(c.done)
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			c.logger.Debug("change event", "collection", c.name, "action", e.Action, "record_id", e.RecordID)
			if err := c.Refetch(ctx); err != nil && !errors.Is(err, ErrUnmounted) && ctx.Err() == nil {
				c.logger.Warn("refetch after change failed", "collection", c.name, "error", err)
			}
		}
	}
}

// Refetch reloads the collection and replaces the held list on success.
// On failure the previous list is kept and the error is recorded.
func (c *Collection[T]) Refetch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrUnmounted
	}
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	items, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrUnmounted
	}
	if seq < c.applied {
		c.logger.Debug("discarding stale fetch", "collection", c.name, "seq", seq, "applied", c.applied)
		return nil
	}
	if err != nil {
		c.err = err
		return fmt.Errorf("%s: fetch: %w", c.name, err)
	}
	c.items = items
	c.err = nil
	c.applied = seq
	select {
	case c.changes <- struct{}{}:
	default:
	}
	return nil
}

// Items returns a copy of the held list.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Loading reports whether the initial fetch is still outstanding.
func (c *Collection[T]) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err returns the error of the last failed fetch, cleared by the next success.
func (c *Collection[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Changes signals after each applied fetch. Signals coalesce.
func (c *Collection[T]) Changes() <-chan struct{} {
	return c.changes
}

// Unmount cancels in-flight fetches, ends the subscription and waits for
// the listener to exit. Later results are discarded. Safe to call twice.
func (c *Collection[T]) Unmount() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
