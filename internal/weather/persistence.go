package weather

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/common"
)

const flushTimeout = 5 * time.Second

// persistenceBridge writes successful searches to the history store from a single
// goroutine, so writes land in the order the successes happened.
type persistenceBridge struct {
	store  HistoryStore
	queue  *common.Queue[Search]
	logger *zap.Logger
}

func newPersistenceBridge(store HistoryStore, logger *zap.Logger) *persistenceBridge {
	return &persistenceBridge{
		store:  store,
		queue:  common.NewQueue[Search](),
		logger: logger,
	}
}

// save enqueues s and returns immediately.
func (b *persistenceBridge) save(s Search) {
	if b.store == nil {
		return
	}
	b.queue.Push(s)
}

func (b *persistenceBridge) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Pending writes still land; they describe searches the consumer already saw succeed.
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			b.writeAll(flushCtx)
			cancel()
			return
		case <-b.queue.Ready():
			b.writeAll(ctx)
		}
	}
}

func (b *persistenceBridge) writeAll(ctx context.Context) {
	for _, s := range b.queue.Drain() {
		if err := b.store.Save(ctx, s); err != nil {
			b.logger.Warn("persist last search failed", zap.String("kind", string(s.Kind)), zap.Error(err))
			continue
		}
		b.logger.Debug("persisted last search", zap.String("kind", string(s.Kind)))
	}
}
