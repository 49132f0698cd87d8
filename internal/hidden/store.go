package hidden

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xcom/map-go/internal/overlay"
)

// Item is one persisted "hide from map" decision.
type Item struct {
	Kind     overlay.HiddenKind `json:"kind"`
	ID       string             `json:"id"`
	Label    string             `json:"label,omitempty"`
	HiddenAt time.Time          `json:"hidden_at"`
}

func key(kind overlay.HiddenKind, id string) string {
	return string(kind) + "|" + id
}

// KV is the persistence surface the store needs. Implementations may fail;
// the store treats every persistence error as non-fatal.
type KV interface {
	Load(ctx context.Context) ([]Item, error)
	Put(ctx context.Context, item Item) error
	Delete(ctx context.Context, kind overlay.HiddenKind, id string) error
}

// Store keeps the set of user hide decisions, in memory always and in the KV
// when one is configured. A persistence failure degrades to session-only
// behavior: the in-memory effect still applies.
type Store struct {
	log      zerolog.Logger
	kv       KV
	onChange func()

	mu    sync.RWMutex
	items map[string]Item

	now func() time.Time
}

// NewStore builds a store. kv may be nil (session-only). onChange fires after
// every effective hide/unhide and is the overlay's resync trigger.
func NewStore(log zerolog.Logger, kv KV, onChange func()) *Store {
	return &Store{
		log:      log,
		kv:       kv,
		onChange: onChange,
		items:    make(map[string]Item),
		now:      time.Now,
	}
}

// Load warms the in-memory set from the KV. A load failure is logged and the
// store starts empty.
func (s *Store) Load(ctx context.Context) {
	if s.kv == nil {
		return
	}
	items, err := s.kv.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("hidden items unavailable, starting empty")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[key(it.Kind, it.ID)] = it
	}
}

// Hide records a hide decision. Idempotent: hiding an already-hidden item
// keeps the original timestamp and triggers nothing.
func (s *Store) Hide(ctx context.Context, kind overlay.HiddenKind, id, label string) {
	s.mu.Lock()
	k := key(kind, id)
	if _, ok := s.items[k]; ok {
		s.mu.Unlock()
		return
	}
	item := Item{Kind: kind, ID: id, Label: label, HiddenAt: s.now()}
	s.items[k] = item
	s.mu.Unlock()

	if s.kv != nil {
		if err := s.kv.Put(ctx, item); err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).
				Msg("hide decision not persisted, applies for this session only")
		}
	}
	if s.onChange != nil {
		s.onChange()
	}
}

// Unhide removes a hide decision. Idempotent.
func (s *Store) Unhide(ctx context.Context, kind overlay.HiddenKind, id string) {
	s.mu.Lock()
	k := key(kind, id)
	if _, ok := s.items[k]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.items, k)
	s.mu.Unlock()

	if s.kv != nil {
		if err := s.kv.Delete(ctx, kind, id); err != nil {
			s.log.Warn().Err(err).Str("kind", string(kind)).Str("id", id).
				Msg("unhide not persisted, applies for this session only")
		}
	}
	if s.onChange != nil {
		s.onChange()
	}
}

// IsHidden is a pure lookup. Implements the overlay's HiddenLookup.
func (s *Store) IsHidden(kind overlay.HiddenKind, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[key(kind, id)]
	return ok
}

// Items lists hide decisions, oldest first.
func (s *Store) Items() []Item {
	s.mu.RLock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].HiddenAt.Equal(out[j].HiddenAt) {
			return out[i].HiddenAt.Before(out[j].HiddenAt)
		}
		return key(out[i].Kind, out[i].ID) < key(out[j].Kind, out[j].ID)
	})
	return out
}
