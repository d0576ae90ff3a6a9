package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/common"
)

var (
	errNoLocationProvider = errors.New("no location provider configured")
	errNoHistoryStore     = errors.New("no history store configured")
	errStreamClosed       = errors.New("stream closed before first value")
)

// bus merges the four trigger sources into a single ordered queue of decisions.
// City and refresh triggers enter the queue when issued; location and restore
// triggers enter when their one-shot read resolves.
type bus struct {
	queue   *common.Queue[Decision]
	locator LocationProvider
	history HistoryStore
	logger  *zap.Logger

	ctx context.Context

	mu     sync.Mutex
	closed bool
	reads  sync.WaitGroup
}

func newBus(ctx context.Context, locator LocationProvider, history HistoryStore, logger *zap.Logger) *bus {
	return &bus{
		queue:   common.NewQueue[Decision](),
		locator: locator,
		history: history,
		logger:  logger,
		ctx:     ctx,
	}
}

// accept queues in as a new decision. It reports false once the bus is closed.
func (b *bus) accept(in Intent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Debug("bus closed; dropping intent", zap.String("intent", string(in.Kind())))
		return false
	}

	d := Decision{ID: uuid.NewString(), Intent: in}
	b.logger.Debug("decision accepted", zap.String("decision_id", d.ID), zap.String("intent", string(in.Kind())))
	b.queue.Push(d)
	return true
}

func (b *bus) issueCitySearch(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		b.logger.Debug("rejected blank city search")
		return false
	}
	return b.accept(CitySearch{Name: name})
}

func (b *bus) issueRefresh() {
	b.accept(RefreshCurrent{})
}

// issueLocationSearch reports false when no location provider is configured or
// the bus is closed.
func (b *bus) issueLocationSearch() bool {
	if b.locator == nil {
		b.logger.Warn("location search requested without a location provider")
		return false
	}
	return b.resolve(KindCoordinateSearch, b.firstFix)
}

func (b *bus) issueRestoreLast() {
	b.resolve(KindRestoreLast, b.lastSearch)
}

// resolve runs read in its own goroutine so a slow read never holds up other sources.
func (b *bus) resolve(kind IntentKind, read func(context.Context) (Intent, error)) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.reads.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.reads.Done()

		in, err := read(b.ctx)
		if err != nil {
			if b.ctx.Err() == nil {
				b.logger.Warn("trigger read failed", zap.String("intent", string(kind)), zap.Error(err))
			}
			return
		}
		b.accept(in)
	}()
	return true
}

// firstFix takes one coordinate fix and releases the subscription.
func (b *bus) firstFix(ctx context.Context) (Intent, error) {
	if b.locator == nil {
		return nil, errNoLocationProvider
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := b.locator.Updates(ctx)
	if err != nil {
		return nil, fmt.Errorf("location updates: %w", err)
	}

	select {
	case c, ok := <-updates:
		if !ok {
			return nil, fmt.Errorf("location updates: %w", errStreamClosed)
		}
		return CoordinateSearch{Coordinates: c}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lastSearch reads the current persisted record once.
func (b *bus) lastSearch(ctx context.Context) (Intent, error) {
	if b.history == nil {
		return nil, errNoHistoryStore
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	records, err := b.history.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last search: %w", err)
	}

	select {
	case s, ok := <-records:
		if !ok {
			return nil, fmt.Errorf("load last search: %w", errStreamClosed)
		}
		return intentFromSearch(s), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// close stops new reads and waits for in-flight ones; the caller cancels ctx first.
func (b *bus) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.reads.Wait()
}
