package weather

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Options tune a Service. The zero value is usable.
type Options struct {
	Logger *zap.Logger

	// OutcomeBuffer is the per-subscriber buffer of Outcomes. Defaults to 16.
	OutcomeBuffer int
}

// Service is the query-orchestration core. Issue* calls never block and may be
// made from any goroutine; decisions are executed one at a time and a newer
// decision always cancels the fetch of an older one.
type Service struct {
	bus        *bus
	dispatcher *dispatcher
	bridge     *persistenceBridge
	outcomes   *broadcaster
	logger     *zap.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	bridgeCtx    context.Context
	bridgeCancel context.CancelFunc

	startOnce sync.Once
	closeOnce sync.Once
	pipeline  sync.WaitGroup
	writer    sync.WaitGroup
}

// NewService wires the core around its collaborators. locator and history may be
// nil, in which case location searches and restores are logged and ignored.
func NewService(queries QueryService, locator LocationProvider, history HistoryStore, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	buffer := opts.OutcomeBuffer
	if buffer <= 0 {
		buffer = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	bridgeCtx, bridgeCancel := context.WithCancel(context.Background())

	outcomes := newBroadcaster(IdleOutcome(), buffer)
	bridge := newPersistenceBridge(history, logger)

	return &Service{
		bus:          newBus(ctx, locator, history, logger),
		dispatcher:   newDispatcher(queries, bridge, outcomes, logger),
		bridge:       bridge,
		outcomes:     outcomes,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		bridgeCtx:    bridgeCtx,
		bridgeCancel: bridgeCancel,
	}
}

// Start launches the pipeline. Intents issued before Start are queued.
func (s *Service) Start() {
	s.startOnce.Do(func() {
		s.pipeline.Add(1)
		go func() {
			defer s.pipeline.Done()
			s.dispatcher.run(s.ctx, s.bus.queue)
		}()

		s.writer.Add(1)
		go func() {
			defer s.writer.Done()
			s.bridge.run(s.bridgeCtx)
		}()

		s.logger.Info("weather query pipeline started")
	})
}

// Run starts the pipeline and blocks until ctx is done, then closes the service.
func (s *Service) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Close()
	return nil
}

// Close cancels any in-flight fetch, flushes pending history writes and closes
// all outcome subscriptions. It is safe to call more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.bus.close()
		s.pipeline.Wait()

		// The dispatcher has stopped, so nothing else can be queued for writing.
		s.bridgeCancel()
		s.writer.Wait()

		s.outcomes.close()
		s.logger.Info("weather query pipeline stopped")
	})
}

// IssueCitySearch queues a search for name. Blank names, and any search issued
// after Close, are rejected and reported with false.
func (s *Service) IssueCitySearch(name string) bool {
	return s.bus.issueCitySearch(name)
}

// IssueLocationSearch reads one fix from the location provider and queues a
// coordinate search for it. It reports false when no location provider is
// configured or the service is closed.
func (s *Service) IssueLocationSearch() bool {
	return s.bus.issueLocationSearch()
}

// IssueRefresh repeats the last successful search, bypassing caches.
func (s *Service) IssueRefresh() {
	s.bus.issueRefresh()
}

// IssueRestoreLast replays the persisted last search, or yields idle if there is none.
func (s *Service) IssueRestoreLast() {
	s.bus.issueRestoreLast()
}

// Outcomes streams the current Outcome followed by every later one, until ctx
// is done or the service is closed.
func (s *Service) Outcomes(ctx context.Context) <-chan Outcome {
	return s.outcomes.subscribe(ctx)
}

// Current returns the most recent Outcome.
func (s *Service) Current() Outcome {
	return s.outcomes.latest()
}
