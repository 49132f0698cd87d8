package overlay

import "strings"

// Style is everything the map toolkit needs to draw a marker. It is a plain
// comparable value so the reconciler can detect restyles cheaply.
type Style struct {
	Class        string `json:"class"`
	Icon         string `json:"icon"`
	Badge        string `json:"badge,omitempty"`
	Muted        bool   `json:"muted,omitempty"`
	Stale        bool   `json:"stale,omitempty"`
	NonActiveKey bool   `json:"non_active_key,omitempty"`
}

type styleEntry struct {
	class string
	icon  string
}

var templateStyles = map[TemplateID]styleEntry{
	TemplateSitrep:    {"marker-sitrep", "report"},
	TemplateContact:   {"marker-contact", "contact"},
	TemplateTask:      {"marker-task", "task"},
	TemplateCheckin:   {"marker-checkin", "person"},
	TemplateResource:  {"marker-resource", "supply"},
	TemplateAsset:     {"marker-asset", "asset"},
	TemplateZone:      {"marker-zone", "zone"},
	TemplateMission:   {"marker-mission", "mission"},
	TemplateEvent:     {"marker-event", "event"},
	TemplatePhaseLine: {"marker-phase-line", "line"},
}

// ResolveStyle maps a report type to its marker class and icon glyph.
func ResolveStyle(t TemplateID) (class, icon string) {
	if e, ok := templateStyles[t]; ok {
		return e.class, e.icon
	}
	return "marker-generic", "report"
}

// MeshStyle maps a node driver to its marker class and icon.
func MeshStyle(driver string) (class, icon string) {
	if driver == "openmanet" {
		return "marker-openmanet", "antenna"
	}
	return "marker-mesh", "radio"
}

// RosterLookup resolves a unit id token to its roster display label.
type RosterLookup interface {
	Label(unitID string) (string, bool)
}

// UnitBadge extracts a short unit id token from a report's free-text summary
// and renders it through the roster. A miss falls back to the raw token;
// roster lookups never block rendering.
func UnitBadge(summary string, roster RosterLookup) string {
	unit := ExtractUnitID(summary)
	if unit == "" {
		return ""
	}
	if roster != nil {
		if label, ok := roster.Label(unit); ok {
			return label
		}
	}
	return unit
}

// ExtractUnitID finds the first token shaped like a callsign-style unit id:
// one to three letters, an optional dash, one to three digits (A1, BR-42).
func ExtractUnitID(summary string) string {
	for _, token := range tokenize(summary) {
		if looksUnitID(token) {
			return strings.ToUpper(token)
		}
	}
	return ""
}

func tokenize(value string) []string {
	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			buf.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func looksUnitID(token string) bool {
	letters := 0
	i := 0
	for i < len(token) && isLetter(token[i]) {
		letters++
		i++
	}
	if letters < 1 || letters > 3 {
		return false
	}
	if i < len(token) && token[i] == '-' {
		i++
	}
	digits := 0
	for i < len(token) && token[i] >= '0' && token[i] <= '9' {
		digits++
		i++
	}
	return i == len(token) && digits >= 1 && digits <= 3
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
