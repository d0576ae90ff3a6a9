package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/weather"
)

// FixSource produces a single position fix.
type FixSource interface {
	Fix(ctx context.Context) (weather.Coordinates, error)
}

var errNoSource = errors.New("location: no fix source configured")

// Feed periodically polls a FixSource and fans fixes out to subscribers. Polling
// runs only while at least one subscriber is attached.
type Feed struct {
	source   FixSource
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	subs      map[uint64]chan weather.Coordinates
	nextID    uint64
}

// NewFeed creates a Feed. Intervals below one second are raised to one second.
func NewFeed(source FixSource, interval time.Duration, logger *zap.Logger) *Feed {
	if interval < time.Second {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{
		source:   source,
		interval: interval,
		logger:   logger,
		subs:     make(map[uint64]chan weather.Coordinates),
	}
}

var _ weather.LocationProvider = (*Feed)(nil)

// Updates implements weather.LocationProvider. The first fix is polled
// immediately; each subscriber holds at most one unread fix.
func (f *Feed) Updates(ctx context.Context) (<-chan weather.Coordinates, error) {
	if f.source == nil {
		return nil, errNoSource
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan weather.Coordinates, 1)
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	if f.scheduler == nil {
		if err := f.startLocked(); err != nil {
			delete(f.subs, id)
			return nil, err
		}
	}

	go func() {
		<-ctx.Done()
		f.unsubscribe(id)
	}()
	return ch, nil
}

// Subscribers returns the number of attached subscribers.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) startLocked() error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(f.interval).Do(f.poll)
	if err != nil {
		return err
	}

	s.StartAsync()
	f.scheduler = s
	f.logger.Debug("location polling started", zap.Duration("interval", f.interval))
	return nil
}

func (f *Feed) unsubscribe(id uint64) {
	f.mu.Lock()
	ch, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
		close(ch)
	}
	var stopping *gocron.Scheduler
	if len(f.subs) == 0 && f.scheduler != nil {
		stopping = f.scheduler
		f.scheduler = nil
	}
	f.mu.Unlock()

	// Stop waits for a running poll, which needs f.mu to deliver.
	if stopping != nil {
		stopping.Stop()
		f.logger.Debug("location polling stopped")
	}
}

func (f *Feed) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), f.interval)
	defer cancel()

	fix, err := f.source.Fix(ctx)
	if err != nil {
		f.logger.Warn("location fix failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case <-ch:
		default:
		}
		ch <- fix
	}
}
