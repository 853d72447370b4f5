package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/always-cache/profile-cache/cache"
	"github.com/rs/zerolog"
)

// HistoryKey is the storage key of the persisted notification list.
const HistoryKey = "notificationHistory"

// DefaultHistoryLimit is the number of notifications kept when no limit is configured.
const DefaultHistoryLimit = 100

type HistoryConfig struct {
	// Store holding the snapshot. Required.
	Store cache.CacheProvider
	// Maximum number of notifications kept, oldest dropped first.
	Limit int
	// Emitter that also receives every notification, may be nil.
	Next Emitter
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// History keeps every notification and persists the list after each one.
type History struct {
	mu    sync.Mutex
	store cache.CacheProvider
	limit int
	next  Emitter
	items []Notification
	log   zerolog.Logger
}

// NewHistory loads the persisted list from the store.
// An unreadable snapshot is logged and replaced by an empty list.
func NewHistory(config HistoryConfig) *History {
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	h := &History{
		store: config.Store,
		limit: config.Limit,
		next:  config.Next,
		items: make([]Notification, 0),
		log:   logger.With().Str("component", "history").Logger(),
	}
	if h.limit <= 0 {
		h.limit = DefaultHistoryLimit
	}

	b, ok, err := h.store.Get(HistoryKey)
	if err != nil {
		h.log.Error().Err(err).Msg("Could not load notification history")
		return h
	}
	if !ok {
		return h
	}
	if err := json.Unmarshal(b, &h.items); err != nil {
		h.log.Warn().Err(err).Msg("Discarding unreadable notification history")
		h.items = make([]Notification, 0)
		return h
	}
	h.trim()
	h.log.Debug().Int("count", len(h.items)).Msg("Loaded notification history")
	return h
}

func (h *History) Notify(n Notification) {
	h.mu.Lock()
	h.items = append(h.items, n)
	h.trim()
	h.persist()
	h.mu.Unlock()

	if h.next != nil {
		h.next.Notify(n)
	}
}

// Items returns a copy of the history, oldest first.
func (h *History) Items() []Notification {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.items...)
}

// Clear empties the history and its snapshot.
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = make([]Notification, 0)
	return h.store.Purge(HistoryKey)
}

func (h *History) trim() {
	if over := len(h.items) - h.limit; over > 0 {
		h.items = append(h.items[:0:0], h.items[over:]...)
	}
}

// must hold h.mu
func (h *History) persist() {
	b, err := json.Marshal(h.items)
	if err != nil {
		h.log.Error().Err(err).Msg("Could not encode notification history")
		return
	}
	if err := h.store.Put(HistoryKey, time.Time{}, b); err != nil {
		h.log.Error().Err(err).Msg("Could not save notification history")
	}
}
