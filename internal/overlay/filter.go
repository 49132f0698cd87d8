package overlay

import "time"

// DefaultRecentWindow is the "recent only" cutoff.
const DefaultRecentWindow = 7 * 24 * time.Hour

// Filters is the user-facing toggle state for the overlay.
type Filters struct {
	Enabled       bool                `json:"enabled"`
	DisabledTypes map[TemplateID]bool `json:"disabled_types,omitempty"`
	TrustedOnly   bool                `json:"trusted_only"`
	RecentOnly    bool                `json:"recent_only"`
	RecentWindow  time.Duration       `json:"-"`
}

// DefaultFilters enables the overlay with every report type switched on.
func DefaultFilters() Filters {
	return Filters{Enabled: true, RecentWindow: DefaultRecentWindow}
}

func (f Filters) recentWindow() time.Duration {
	if f.RecentWindow <= 0 {
		return DefaultRecentWindow
	}
	return f.RecentWindow
}

// View selects which side of the hidden-item predicate a pipeline run keeps.
type View int

const (
	// ViewNormal renders everything the user has not hidden.
	ViewNormal View = iota
	// ViewHidden renders only hidden items, restyled as muted.
	ViewHidden
)

// HiddenLookup is the read side of the hidden-item store.
type HiddenLookup interface {
	IsHidden(kind HiddenKind, id string) bool
}

// ApplyFilters runs the ordered predicate chain over the working list. Each
// stage is total; the chain short-circuits to empty only when the overlay is
// globally disabled (and then only for the normal view, because hidden-item
// markers may still be shown independently).
func ApplyFilters(features []Feature, filters Filters, hidden HiddenLookup, view View, now time.Time) []Feature {
	if !filters.Enabled && view == ViewNormal {
		return nil
	}

	out := filterByType(features, filters.DisabledTypes)
	if filters.TrustedOnly {
		out = filterTrusted(out)
	}
	if filters.RecentOnly {
		out = filterRecent(out, now.Add(-filters.recentWindow()))
	}
	out = filterLifecycle(out, now)
	return filterHidden(out, hidden, view)
}

// filterByType drops features whose template is switched off. Unrecognized
// template ids pass through.
func filterByType(features []Feature, disabled map[TemplateID]bool) []Feature {
	if len(disabled) == 0 {
		return features
	}
	out := features[:0:0]
	for _, f := range features {
		if f.TemplateID.Known() && disabled[f.TemplateID] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func filterTrusted(features []Feature) []Feature {
	out := features[:0:0]
	for _, f := range features {
		if f.Mode == ModeSecure {
			out = append(out, f)
		}
	}
	return out
}

// filterRecent drops features with a resolvable timestamp older than the
// cutoff. Features with no timestamp are not-yet-timestamped, never assumed
// stale, so they always pass.
func filterRecent(features []Feature, cutoff time.Time) []Feature {
	out := features[:0:0]
	for _, f := range features {
		if ts, ok := f.EffectiveTimestamp(); ok && ts.Before(cutoff) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// filterLifecycle applies the activation window to phase-line entities only.
func filterLifecycle(features []Feature, now time.Time) []Feature {
	out := features[:0:0]
	for _, f := range features {
		if f.IsPhaseLine() {
			if lifecycleClosed(f.Status) {
				continue
			}
			if f.StartAt != nil && f.StartAt.After(now) {
				continue
			}
			if f.EndAt != nil && f.EndAt.Before(now) {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func filterHidden(features []Feature, hidden HiddenLookup, view View) []Feature {
	if hidden == nil {
		if view == ViewHidden {
			return nil
		}
		return features
	}
	out := features[:0:0]
	for _, f := range features {
		isHidden := hidden.IsHidden(KindImported, f.HideID())
		if (view == ViewHidden) == isHidden {
			out = append(out, f)
		}
	}
	return out
}
