package feeds

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"xcom/map-go/internal/overlay"
)

// Archive is the optional durable backing for the imported feed.
type Archive interface {
	Append(ctx context.Context, c overlay.ReportCollection) error
	List(ctx context.Context) ([]overlay.ReportCollection, error)
}

// Log is the imported-report event log: an in-memory list of collections,
// optionally mirrored to a durable archive. Implements the overlay's
// FeedSource.
type Log struct {
	log     zerolog.Logger
	archive Archive

	mu          sync.RWMutex
	collections []overlay.ReportCollection
}

func NewLog(log zerolog.Logger, archive Archive) *Log {
	return &Log{log: log, archive: archive}
}

// Load warms the in-memory list from the archive. Failures are non-fatal;
// the feed starts empty.
func (l *Log) Load(ctx context.Context) {
	if l.archive == nil {
		return
	}
	collections, err := l.archive.List(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("imported feed archive unavailable, starting empty")
		return
	}
	l.mu.Lock()
	l.collections = collections
	l.mu.Unlock()
}

// Append records a collection in memory and mirrors it to the archive.
// An archive failure degrades to session-only retention.
func (l *Log) Append(ctx context.Context, c overlay.ReportCollection) {
	l.mu.Lock()
	l.collections = append(l.collections, c)
	l.mu.Unlock()

	if l.archive != nil {
		if err := l.archive.Append(ctx, c); err != nil {
			l.log.Warn().Err(err).Msg("imported collection not archived, kept in memory only")
		}
	}
}

// ImportedCollections returns a copy of the event log.
func (l *Log) ImportedCollections() []overlay.ReportCollection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]overlay.ReportCollection, len(l.collections))
	copy(out, l.collections)
	return out
}
