package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/i474232898/weather-search/internal/weather"
)

const (
	keySearchType = "search_type"
	keyLastSearch = "last_search"

	// search_type values.
	typeCity     = "city_value"
	typeLocation = "location_value"
)

// kv is the two-key record a history backend persists. An empty searchType means
// no search is stored.
type kv interface {
	read(ctx context.Context) (searchType, value string, err error)
	write(ctx context.Context, searchType, value string) error
	close() error
}

// History is a weather.HistoryStore over a SQL backend. Load streams the current
// record and every later Save made through the same History.
type History struct {
	backend kv
	logger  *zap.Logger

	// mu orders a Load's initial read against concurrent Saves so no change is missed.
	mu       sync.Mutex
	watchers *watchers
}

func newHistory(backend kv, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{backend: backend, logger: logger, watchers: newWatchers()}
}

// Load implements weather.HistoryStore.
func (h *History) Load(ctx context.Context) (<-chan weather.Search, error) {
	if h == nil || h.backend == nil {
		return nil, fmt.Errorf("load history: store is nil")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	searchType, value, err := h.backend.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	current, err := decodeSearch(searchType, value)
	if err != nil {
		// A corrupt record is treated as no record; the next successful search overwrites it.
		h.logger.Warn("ignoring unreadable last search", zap.Error(err))
		current = weather.NoSearch()
	}

	return h.watchers.add(ctx, current), nil
}

// Save implements weather.HistoryStore.
func (h *History) Save(ctx context.Context, s weather.Search) error {
	if h == nil || h.backend == nil {
		return fmt.Errorf("save history: store is nil")
	}

	searchType, value, err := encodeSearch(s)
	if err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.backend.write(ctx, searchType, value); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	h.watchers.notify(s)
	return nil
}

// Close ends all Load streams and releases the backend.
func (h *History) Close() error {
	if h == nil || h.backend == nil {
		return nil
	}
	h.watchers.closeAll()
	return h.backend.close()
}

func encodeSearch(s weather.Search) (string, string, error) {
	switch s.Kind {
	case weather.SearchCity:
		return typeCity, s.City, nil
	case weather.SearchLocation:
		raw, err := json.Marshal(s.Coordinates)
		if err != nil {
			return "", "", fmt.Errorf("encode coordinates: %w", err)
		}
		return typeLocation, string(raw), nil
	case weather.SearchNone:
		return "", "", nil
	default:
		return "", "", fmt.Errorf("unknown search kind %q", s.Kind)
	}
}

func decodeSearch(searchType, value string) (weather.Search, error) {
	switch searchType {
	case typeCity:
		return weather.CitySearchRecord(value), nil
	case typeLocation:
		var c weather.Coordinates
		if err := json.Unmarshal([]byte(value), &c); err != nil {
			return weather.Search{}, fmt.Errorf("decode coordinates: %w", err)
		}
		return weather.LocationSearchRecord(c), nil
	case "":
		return weather.NoSearch(), nil
	default:
		return weather.Search{}, fmt.Errorf("unknown search type %q", searchType)
	}
}

// watchers fans saved records out to Load streams. Each stream holds at most
// one pending record; a newer save replaces an unread one.
type watchers struct {
	mu     sync.Mutex
	subs   map[uint64]chan weather.Search
	nextID uint64
	done   chan struct{}
	closed bool
}

func newWatchers() *watchers {
	return &watchers{subs: make(map[uint64]chan weather.Search), done: make(chan struct{})}
}

func (w *watchers) add(ctx context.Context, current weather.Search) <-chan weather.Search {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan weather.Search, 1)
	ch <- current
	if w.closed {
		close(ch)
		return ch
	}

	id := w.nextID
	w.nextID++
	w.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
			w.remove(id)
		case <-w.done:
		}
	}()
	return ch
}

func (w *watchers) remove(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ch, ok := w.subs[id]; ok {
		delete(w.subs, id)
		close(ch)
	}
}

func (w *watchers) notify(s weather.Search) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (w *watchers) closeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
	close(w.done)
}
