package overlay

import (
	"math"
	"strings"
	"time"
)

// TemplateID tags an imported report with its form type (1–10).
type TemplateID int

const (
	TemplateSitrep TemplateID = iota + 1
	TemplateContact
	TemplateTask
	TemplateCheckin
	TemplateResource
	TemplateAsset
	TemplateZone
	TemplateMission
	TemplateEvent
	TemplatePhaseLine
)

var templateNames = map[TemplateID]string{
	TemplateSitrep:    "SITREP",
	TemplateContact:   "CONTACT",
	TemplateTask:      "TASK",
	TemplateCheckin:   "CHECKIN",
	TemplateResource:  "RESOURCE",
	TemplateAsset:     "ASSET",
	TemplateZone:      "ZONE",
	TemplateMission:   "MISSION",
	TemplateEvent:     "EVENT",
	TemplatePhaseLine: "PHASE LINE",
}

func (t TemplateID) Known() bool {
	_, ok := templateNames[t]
	return ok
}

func (t TemplateID) String() string {
	if name, ok := templateNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Mode distinguishes open packets from encrypted ones.
type Mode string

const (
	ModeClear  Mode = "CLEAR"
	ModeSecure Mode = "SECURE"
)

// HiddenKind namespaces hide decisions by the feed an entity came from.
type HiddenKind string

const (
	KindImported HiddenKind = "imported"
	KindMesh     HiddenKind = "mesh"
)

type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p Position) Valid() bool {
	return finite(p.Lat) && finite(p.Lon)
}

type GeometryType string

const (
	GeometryPoint   GeometryType = "Point"
	GeometryLine    GeometryType = "LineString"
	GeometryPolygon GeometryType = "Polygon"
)

// Geometry carries exactly one shape depending on Type. Polygon holds the
// outer ring only; interior rings never occur in field reports.
type Geometry struct {
	Type  GeometryType `json:"type"`
	Point Position     `json:"point,omitempty"`
	Path  []Position   `json:"path,omitempty"`
	Ring  []Position   `json:"ring,omitempty"`
}

// Valid reports whether the geometry is renderable. Malformed geometry is
// dropped silently, never raised as an error.
func (g Geometry) Valid() bool {
	switch g.Type {
	case GeometryPoint:
		return g.Point.Valid()
	case GeometryLine:
		if len(g.Path) < 2 {
			return false
		}
		for _, p := range g.Path {
			if !p.Valid() {
				return false
			}
		}
		return true
	case GeometryPolygon:
		if len(g.Ring) < 3 {
			return false
		}
		for _, p := range g.Ring {
			if !p.Valid() {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Feature is one geometry + properties entry produced fresh on every resync.
type Feature struct {
	ID           string     `json:"id"`
	Geometry     Geometry   `json:"geometry"`
	TemplateID   TemplateID `json:"template_id"`
	Mode         Mode       `json:"mode"`
	PacketID     string     `json:"packet_id"`
	KID          string     `json:"kid,omitempty"`
	NonActiveKey bool       `json:"non_active_key,omitempty"`
	PhaseLineID  string     `json:"phase_line_id,omitempty"`
	Status       string     `json:"status,omitempty"`
	StartAt      *time.Time `json:"start_at,omitempty"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	ImportedAt   *time.Time `json:"imported_at,omitempty"`
	PacketAt     *time.Time `json:"packet_at,omitempty"`
	Summary      string     `json:"summary,omitempty"`
}

// EffectiveTimestamp picks the first usable timestamp, preferring local
// receipt time over a possibly-incorrect remote clock.
func (f Feature) EffectiveTimestamp() (time.Time, bool) {
	for _, ts := range []*time.Time{f.ReceivedAt, f.ImportedAt, f.PacketAt} {
		if ts != nil && !ts.IsZero() {
			return *ts, true
		}
	}
	return time.Time{}, false
}

func (f Feature) IsPhaseLine() bool {
	return f.PhaseLineID != ""
}

// HideID derives the identity a hide decision is keyed on. It depends on the
// feature's semantic content, not its current geometry, so a hide survives
// updates to the same logical entity. A zone's polygon and its center marker
// share one identity.
func (f Feature) HideID() string {
	if f.PhaseLineID != "" {
		return "pl|" + f.PhaseLineID
	}
	if f.TemplateID == TemplateZone {
		id := "zone|" + string(f.Mode) + "|" + f.PacketID
		if f.KID != "" {
			id += "|" + f.KID
		}
		return id
	}
	return f.ID
}

// lifecycleClosed reports whether a status string marks the entity closed.
func lifecycleClosed(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "closed")
}
