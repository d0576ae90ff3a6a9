package weather

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/common"
)

type completion struct {
	decision Decision
	payload  Payload
	err      error
}

// dispatcher executes decisions with switch-latest semantics. Everything except
// the fetch goroutines runs on the goroutine calling run, which is the only
// reader and writer of active.
type dispatcher struct {
	queries  QueryService
	bridge   *persistenceBridge
	outcomes *broadcaster
	logger   *zap.Logger

	// active is the last city or coordinate search whose fetch succeeded.
	active Intent

	seq     uint64
	current uint64
	cancel  context.CancelFunc
	done    chan completion
	fetches sync.WaitGroup
}

func newDispatcher(queries QueryService, bridge *persistenceBridge, outcomes *broadcaster, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		queries:  queries,
		bridge:   bridge,
		outcomes: outcomes,
		logger:   logger,
		done:     make(chan completion),
	}
}

func (d *dispatcher) run(ctx context.Context, decisions *common.Queue[Decision]) {
	defer func() {
		d.release()
		d.fetches.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-decisions.Ready():
			for _, dec := range decisions.Drain() {
				d.dispatch(ctx, dec)
			}
		case c := <-d.done:
			d.complete(c)
		}
	}
}

func (d *dispatcher) dispatch(ctx context.Context, dec Decision) {
	d.seq++
	dec.Seq = d.seq

	// Any fetch from an older decision is cancelled and can no longer deliver.
	d.release()
	d.current = dec.Seq

	d.logger.Info("dispatching decision",
		zap.String("decision_id", dec.ID),
		zap.Uint64("seq", dec.Seq),
		zap.String("intent", string(dec.Intent.Kind())),
	)

	switch in := dec.Intent.(type) {
	case CitySearch:
		d.start(ctx, dec, func(ctx context.Context) (Payload, error) {
			return d.queries.FetchByCity(ctx, in.Name, false)
		})
	case CoordinateSearch:
		d.start(ctx, dec, func(ctx context.Context) (Payload, error) {
			return d.queries.FetchByCoordinates(ctx, in.Latitude, in.Longitude, false)
		})
	case RefreshCurrent:
		d.refresh(ctx, dec)
	case RestoreLast:
		d.outcomes.publish(IdleOutcome().stamp(dec))
	default:
		d.logger.Error("unhandled intent", zap.String("decision_id", dec.ID), zap.String("intent", string(in.Kind())))
		d.outcomes.publish(Outcome{Kind: OutcomeFailure, Error: UnknownError}.stamp(dec))
	}
}

// refresh repeats the active search, bypassing caches. Only the in-memory active
// search is consulted, never the persisted record.
func (d *dispatcher) refresh(ctx context.Context, dec Decision) {
	switch q := d.active.(type) {
	case CitySearch:
		d.start(ctx, dec, func(ctx context.Context) (Payload, error) {
			return d.queries.FetchByCity(ctx, q.Name, true)
		})
	case CoordinateSearch:
		d.start(ctx, dec, func(ctx context.Context) (Payload, error) {
			return d.queries.FetchByCoordinates(ctx, q.Latitude, q.Longitude, true)
		})
	default:
		d.outcomes.publish(IdleOutcome().stamp(dec))
	}
}

func (d *dispatcher) start(ctx context.Context, dec Decision, fetch func(context.Context) (Payload, error)) {
	fctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.outcomes.publish(LoadingOutcome().stamp(dec))

	d.fetches.Add(1)
	go func() {
		defer d.fetches.Done()

		p, err := fetch(fctx)
		if fctx.Err() != nil {
			return
		}
		select {
		case d.done <- completion{decision: dec, payload: p, err: err}:
		case <-fctx.Done():
		}
	}()
}

func (d *dispatcher) complete(c completion) {
	if c.decision.Seq != d.current {
		d.logger.Debug("discarding superseded result", zap.String("decision_id", c.decision.ID), zap.Uint64("seq", c.decision.Seq))
		return
	}
	d.release()

	out := Project(c.decision.Intent, c.payload, c.err).stamp(c.decision)
	if c.err != nil {
		d.logger.Warn("weather fetch failed",
			zap.String("decision_id", c.decision.ID),
			zap.String("kind", string(out.Error)),
			zap.Error(c.err),
		)
	} else {
		switch c.decision.Intent.(type) {
		case CitySearch, CoordinateSearch:
			d.active = c.decision.Intent
			if rec, err := searchFromIntent(c.decision.Intent); err == nil {
				d.bridge.save(rec)
			}
		}
	}

	d.outcomes.publish(out)
}

// release cancels the outstanding fetch, if any.
func (d *dispatcher) release() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
