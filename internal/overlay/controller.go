package overlay

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xcom/map-go/internal/metrics"
)

// Vector source names pushed to the map library each resync.
const (
	SourceImported = "overlay-imported"
	SourceHidden   = "overlay-hidden"
)

// FeedSource supplies the imported report collections.
type FeedSource interface {
	ImportedCollections() []ReportCollection
}

// MeshSource supplies the decoded radio-link node snapshot.
type MeshSource interface {
	MeshNodes() []MeshNode
}

// NodeSource supplies the polled auxiliary node snapshot.
type NodeSource interface {
	Nodes() []MeshNode
}

// AssignmentLookup resolves a mesh node to the roster unit it is bound to.
type AssignmentLookup interface {
	Assignment(nodeID string) (unitID string, ok bool)
}

// Counts summarizes the last resync for the legend and the control API.
type Counts struct {
	ImportedVisible int `json:"imported_visible"`
	ImportedTotal   int `json:"imported_total"`
	MeshVisible     int `json:"mesh_visible"`
	MeshTotal       int `json:"mesh_total"`
	HiddenShown     int `json:"hidden_shown"`
}

// Options wires the controller's collaborators. Markers is required; every
// other source may be nil and reads as empty.
type Options struct {
	Feeds       FeedSource
	Mesh        MeshSource
	Polled      NodeSource
	Hidden      HiddenLookup
	Roster      RosterLookup
	Assignments AssignmentLookup
	Markers     MarkerFactory
	Vectors     VectorSink
	Metrics     *metrics.Metrics
	Filters     Filters
	StaleAfter  time.Duration
	Now         func() time.Time
}

// Controller owns the overlay state and exposes the single Resync entry
// point invoked on every external event or user toggle. Resync runs
// synchronously start to finish and is safe to call repeatedly.
type Controller struct {
	log zerolog.Logger

	mu          sync.Mutex
	feeds       FeedSource
	mesh        MeshSource
	polled      NodeSource
	hidden      HiddenLookup
	roster      RosterLookup
	assignments AssignmentLookup
	factory     MarkerFactory
	vectors     VectorSink
	metrics     *metrics.Metrics

	filters    Filters
	state      *OverlayState
	mapReady   bool
	legend     string
	counts     Counts
	staleAfter time.Duration
	now        func() time.Time
}

func New(log zerolog.Logger, opts Options) *Controller {
	filters := opts.Filters
	if filters.RecentWindow <= 0 {
		filters.RecentWindow = DefaultRecentWindow
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultRecentWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		log:         log,
		feeds:       opts.Feeds,
		mesh:        opts.Mesh,
		polled:      opts.Polled,
		hidden:      opts.Hidden,
		roster:      opts.Roster,
		assignments: opts.Assignments,
		factory:     opts.Markers,
		vectors:     opts.Vectors,
		metrics:     opts.Metrics,
		filters:     filters,
		state:       NewState(),
		staleAfter:  staleAfter,
		now:         now,
	}
}

// Resync rebuilds the desired feature set from all three feeds and reconciles
// it against the live markers. Calling it twice with unchanged inputs issues
// zero marker operations on the second call.
func (c *Controller) Resync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resyncLocked()
}

// SetMapReady gates map mutation on the underlying map being loaded. Going
// not-ready (a base-style reload began, which wipes all custom layers) drops
// every handle; going ready re-runs full reconciliation.
func (c *Controller) SetMapReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ready == c.mapReady {
		return
	}
	c.mapReady = ready
	if !ready {
		c.state.normal.forget()
		c.state.hidden.forget()
		return
	}
	c.resyncLocked()
}

// UpdateFilters applies a toggle change and resyncs.
func (c *Controller) UpdateFilters(apply func(*Filters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	apply(&c.filters)
	if c.filters.RecentWindow <= 0 {
		c.filters.RecentWindow = DefaultRecentWindow
	}
	c.resyncLocked()
}

func (c *Controller) Filters() Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.filters
	if len(f.DisabledTypes) > 0 {
		disabled := make(map[TemplateID]bool, len(f.DisabledTypes))
		for k, v := range f.DisabledTypes {
			disabled[k] = v
		}
		f.DisabledTypes = disabled
	}
	return f
}

// Legend summarizes visible/total counts and the current filter state.
func (c *Controller) Legend() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.legend
}

func (c *Controller) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// Snapshot reports the live marker sets, sorted by id for stable output.
type Snapshot struct {
	Legend string       `json:"legend"`
	Counts Counts       `json:"counts"`
	Normal []MarkerSpec `json:"normal"`
	Hidden []MarkerSpec `json:"hidden"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	normal := c.state.normal.specs()
	hidden := c.state.hidden.specs()
	sort.Slice(normal, func(i, j int) bool { return normal[i].ID < normal[j].ID })
	sort.Slice(hidden, func(i, j int) bool { return hidden[i].ID < hidden[j].ID })
	return Snapshot{Legend: c.legend, Counts: c.counts, Normal: normal, Hidden: hidden}
}

func (c *Controller) resyncLocked() {
	if !c.mapReady {
		c.log.Debug().Msg("resync skipped: map not ready")
		return
	}
	start := time.Now()
	now := c.now()

	var collections []ReportCollection
	if c.feeds != nil {
		collections = c.feeds.ImportedCollections()
	}
	var radio []MeshNode
	if c.mesh != nil {
		radio = c.mesh.MeshNodes()
	}
	var polled []MeshNode
	if c.polled != nil {
		polled = c.polled.Nodes()
	}

	features, nodes := Aggregate(collections, radio, polled)

	kept := ResolveLatest(ApplyFilters(features, c.filters, c.hidden, ViewNormal, now))
	specs, vectorFeatures := c.buildImported(kept, now, ViewNormal)
	meshSpecs := c.buildMesh(nodes, ViewNormal, now)

	hiddenKept := ResolveLatest(ApplyFilters(features, c.filters, c.hidden, ViewHidden, now))
	hiddenSpecs, hiddenVectors := c.buildImported(hiddenKept, now, ViewHidden)
	hiddenMesh := c.buildMesh(nodes, ViewHidden, now)

	var stats ReconcileStats
	stats.add(c.state.normal.reconcile(c.factory, append(specs, meshSpecs...)))
	stats.add(c.state.hidden.reconcile(c.factory, append(hiddenSpecs, hiddenMesh...)))

	if c.vectors != nil {
		c.vectors.UpdateSource(SourceImported, FeatureCollection{Features: vectorFeatures})
		c.vectors.UpdateSource(SourceHidden, FeatureCollection{Features: hiddenVectors})
	}

	c.counts = Counts{
		ImportedVisible: len(kept),
		ImportedTotal:   len(features),
		MeshVisible:     len(meshSpecs),
		MeshTotal:       len(nodes),
		HiddenShown:     len(hiddenSpecs) + len(hiddenMesh),
	}
	c.legend = legendString(c.counts, c.filters)

	c.metrics.ObserveResync(time.Since(start))
	c.metrics.AddMarkerOps("create", stats.Created)
	c.metrics.AddMarkerOps("move", stats.Moved)
	c.metrics.AddMarkerOps("restyle", stats.Restyled)
	c.metrics.AddMarkerOps("destroy", stats.Removed)

	c.log.Debug().
		Int("created", stats.Created).
		Int("moved", stats.Moved).
		Int("restyled", stats.Restyled).
		Int("removed", stats.Removed).
		Int("imported_visible", c.counts.ImportedVisible).
		Int("mesh_visible", c.counts.MeshVisible).
		Msg("overlay resync")
}

// buildImported splits the desired feature set into point markers and the
// vector-layer feature collection. Zone point geometries are never markers;
// they ride the vector source as designated zone centers.
func (c *Controller) buildImported(features []Feature, now time.Time, view View) ([]MarkerSpec, []VectorFeature) {
	muted := view == ViewHidden
	idPrefix := "imported:"
	if muted {
		idPrefix = "hv:imported:"
	}

	var specs []MarkerSpec
	var vectors []VectorFeature
	for _, f := range features {
		if !f.Geometry.Valid() {
			continue
		}

		class, icon := ResolveStyle(f.TemplateID)
		stale := false
		ts, hasTS := f.EffectiveTimestamp()
		if hasTS && ts.Before(now.Add(-c.staleAfter)) {
			stale = true
		}

		if f.Geometry.Type != GeometryPoint || f.TemplateID == TemplateZone {
			props := map[string]any{
				"class":    class,
				"template": f.TemplateID.String(),
				"hide_id":  f.HideID(),
			}
			// A zone's polygon and center marker share one hide identity but
			// need distinct vector ids, or id-keyed consumers conflate them.
			vectorID := idPrefix + f.HideID()
			if f.Geometry.Type == GeometryPoint {
				props["role"] = "zone-center"
				vectorID += "|center"
			}
			if muted {
				props["muted"] = true
			}
			if f.PhaseLineID != "" {
				props["phase_line_id"] = f.PhaseLineID
			}
			vectors = append(vectors, VectorFeature{
				ID:         vectorID,
				Geometry:   f.Geometry,
				Properties: props,
			})
			continue
		}

		style := Style{
			Class:        class,
			Icon:         icon,
			Muted:        muted,
			Stale:        stale,
			NonActiveKey: f.NonActiveKey,
		}
		if f.TemplateID == TemplateCheckin {
			style.Badge = UnitBadge(f.Summary, c.roster)
		}

		detail := MarkerDetail{
			Kind:     KindImported,
			HideID:   f.HideID(),
			Template: f.TemplateID.String(),
			PacketID: f.PacketID,
			Label:    f.Summary,
			Hidden:   muted,
		}
		if f.Mode == ModeSecure {
			detail.KID = f.KID
		}
		if hasTS {
			t := ts
			detail.Timestamp = &t
		}

		specs = append(specs, MarkerSpec{
			ID:     idPrefix + f.HideID(),
			Pos:    f.Geometry.Point,
			Style:  style,
			Detail: detail,
		})
	}
	return specs, vectors
}

func (c *Controller) buildMesh(nodes []MeshNode, view View, now time.Time) []MarkerSpec {
	if !c.filters.Enabled && view == ViewNormal {
		return nil
	}
	muted := view == ViewHidden
	idPrefix := "mesh:"
	if muted {
		idPrefix = "hv:mesh:"
	}

	var specs []MarkerSpec
	for _, n := range nodes {
		identity := n.Identity()
		if identity == "" || n.Position == nil || !n.Position.Valid() {
			continue
		}
		isHidden := c.hidden != nil && c.hidden.IsHidden(KindMesh, identity)
		if muted != isHidden {
			continue
		}

		class, icon := MeshStyle(n.Driver)
		style := Style{Class: class, Icon: icon, Muted: muted}
		if !n.Position.Time.IsZero() && n.Position.Time.Before(now.Add(-c.staleAfter)) {
			style.Stale = true
		}
		if c.assignments != nil {
			if unit, ok := c.assignments.Assignment(identity); ok {
				style.Badge = unit
				if c.roster != nil {
					if label, ok := c.roster.Label(unit); ok {
						style.Badge = label
					}
				}
			}
		}

		label := n.LongName
		if label == "" {
			label = n.ShortName
		}
		detail := MarkerDetail{
			Kind:   KindMesh,
			HideID: identity,
			Label:  label,
			Hidden: muted,
			SNR:    n.LastSNR,
			RSSI:   n.LastRSSI,
		}
		if !n.Position.Time.IsZero() {
			t := n.Position.Time
			detail.Timestamp = &t
		}

		specs = append(specs, MarkerSpec{
			ID:     idPrefix + identity,
			Pos:    Position{Lat: n.Position.Lat, Lon: n.Position.Lon},
			Style:  style,
			Detail: detail,
		})
	}
	return specs
}

func legendString(c Counts, f Filters) string {
	if !f.Enabled {
		return fmt.Sprintf("Imported: off (%d total) · Mesh: off (%d total)", c.ImportedTotal, c.MeshTotal)
	}
	var qual []string
	if f.TrustedOnly {
		qual = append(qual, "trusted")
	}
	if f.RecentOnly {
		qual = append(qual, "recent")
	}
	suffix := ""
	if len(qual) > 0 {
		suffix = ", " + strings.Join(qual, ", ")
	}
	return fmt.Sprintf("Imported: %d (%d total%s) · Mesh: %d/%d",
		c.ImportedVisible, c.ImportedTotal, suffix, c.MeshVisible, c.MeshTotal)
}
