package overlay

import "time"

// MarkerHandle is the contract the reconciler needs from the map toolkit: an
// already-placed marker that can be moved, restyled, and destroyed in place.
type MarkerHandle interface {
	Move(pos Position)
	Restyle(style Style)
	Destroy()
}

// MarkerFactory places a new marker. The factory wires the click handler that
// opens the detail popup; the reconciler only cares about the handle.
type MarkerFactory interface {
	Create(spec MarkerSpec) MarkerHandle
}

// MarkerDetail feeds the detail popup opened on marker click, including the
// hide/unhide action target.
type MarkerDetail struct {
	Kind      HiddenKind `json:"kind"`
	HideID    string     `json:"hide_id"`
	Template  string     `json:"template,omitempty"`
	PacketID  string     `json:"packet_id,omitempty"`
	KID       string     `json:"kid,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Label     string     `json:"label,omitempty"`
	Hidden    bool       `json:"hidden,omitempty"`
	SNR       *float64   `json:"snr,omitempty"`
	RSSI      *float64   `json:"rssi,omitempty"`
}

// MarkerSpec is one desired marker, keyed by a stable id.
type MarkerSpec struct {
	ID     string       `json:"id"`
	Pos    Position     `json:"pos"`
	Style  Style        `json:"style"`
	Detail MarkerDetail `json:"detail"`
}

// VectorFeature and FeatureCollection are the GeoJSON-shaped payload handed
// to the map library's vector source, which performs its own diffing.
type VectorFeature struct {
	ID         string         `json:"id"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
}

type FeatureCollection struct {
	Features []VectorFeature `json:"features"`
}

// VectorSink receives the full non-point feature set each resync.
type VectorSink interface {
	UpdateSource(name string, fc FeatureCollection)
}

// ReconcileStats counts the operations one reconcile pass issued.
type ReconcileStats struct {
	Created  int
	Moved    int
	Restyled int
	Removed  int
}

func (s ReconcileStats) Total() int {
	return s.Created + s.Moved + s.Restyled + s.Removed
}

func (s *ReconcileStats) add(o ReconcileStats) {
	s.Created += o.Created
	s.Moved += o.Moved
	s.Restyled += o.Restyled
	s.Removed += o.Removed
}

type liveMarker struct {
	handle MarkerHandle
	spec   MarkerSpec
}

// markerSet is the arena of live MarkerHandles for one overlay view.
type markerSet struct {
	live map[string]*liveMarker
}

func newMarkerSet() markerSet {
	return markerSet{live: make(map[string]*liveMarker)}
}

// reconcile diffs the desired marker set against the live one and issues the
// minimal create/move/restyle/destroy operations. O(desired + live): one pass
// building the want map, one pass over live ids, one pass creating the rest.
// Live markers are updated in place, never destroyed and recreated, so open
// popups survive and nothing flickers.
func (m *markerSet) reconcile(factory MarkerFactory, desired []MarkerSpec) ReconcileStats {
	var stats ReconcileStats

	want := make(map[string]MarkerSpec, len(desired))
	for _, spec := range desired {
		if _, ok := want[spec.ID]; ok {
			continue // first spec wins; duplicate ids indicate a feed quirk upstream
		}
		want[spec.ID] = spec
	}

	for id, lm := range m.live {
		spec, ok := want[id]
		if !ok {
			lm.handle.Destroy()
			delete(m.live, id)
			stats.Removed++
			continue
		}
		if spec.Pos != lm.spec.Pos {
			lm.handle.Move(spec.Pos)
			stats.Moved++
		}
		if spec.Style != lm.spec.Style {
			lm.handle.Restyle(spec.Style)
			stats.Restyled++
		}
		lm.spec = spec
	}

	for _, spec := range desired {
		if _, ok := m.live[spec.ID]; ok {
			continue
		}
		m.live[spec.ID] = &liveMarker{handle: factory.Create(spec), spec: spec}
		stats.Created++
	}

	return stats
}

// forget drops every handle without issuing destroy operations. Used after a
// base-style reload, which already wiped the map's custom layers.
func (m *markerSet) forget() {
	m.live = make(map[string]*liveMarker)
}

func (m *markerSet) specs() []MarkerSpec {
	out := make([]MarkerSpec, 0, len(m.live))
	for _, lm := range m.live {
		out = append(out, lm.spec)
	}
	return out
}

// OverlayState owns the live markers for the normal and hidden views. It is
// held as a single value by the Overlay Controller, never as ambient state.
type OverlayState struct {
	normal markerSet
	hidden markerSet
}

func NewState() *OverlayState {
	return &OverlayState{normal: newMarkerSet(), hidden: newMarkerSet()}
}
