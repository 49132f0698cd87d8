package overlay

import (
	"math"
	"testing"
	"time"
)

func TestHideID_PhaseLineIgnoresGeometry(t *testing.T) {
	a := Feature{
		ID:          "pkt-1",
		PhaseLineID: "PL-ALPHA",
		Geometry:    Geometry{Type: GeometryLine, Path: []Position{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}},
	}
	b := a
	b.ID = "pkt-2"
	b.Geometry.Path = []Position{{Lat: 5, Lon: 5}, {Lat: 6, Lon: 6}}

	if a.HideID() != b.HideID() {
		t.Fatalf("expected same hide id for same phase line, got %q and %q", a.HideID(), b.HideID())
	}
	if a.HideID() != "pl|PL-ALPHA" {
		t.Fatalf("unexpected phase line hide id: %q", a.HideID())
	}
}

func TestHideID_ZoneSharesIdentityAcrossShapes(t *testing.T) {
	poly := Feature{
		ID:         "zone-poly",
		TemplateID: TemplateZone,
		Mode:       ModeSecure,
		PacketID:   "p-77",
		KID:        "k-9",
		Geometry:   Geometry{Type: GeometryPolygon, Ring: []Position{{}, {Lat: 1}, {Lon: 1}}},
	}
	center := poly
	center.ID = "zone-center"
	center.Geometry = Geometry{Type: GeometryPoint, Point: Position{Lat: 0.5, Lon: 0.5}}

	if poly.HideID() != center.HideID() {
		t.Fatalf("zone polygon and center must share identity: %q vs %q", poly.HideID(), center.HideID())
	}
	if poly.HideID() != "zone|SECURE|p-77|k-9" {
		t.Fatalf("unexpected zone hide id: %q", poly.HideID())
	}

	open := poly
	open.Mode = ModeClear
	open.KID = ""
	if open.HideID() != "zone|CLEAR|p-77" {
		t.Fatalf("unexpected clear zone hide id: %q", open.HideID())
	}
}

func TestHideID_DefaultIsFeedID(t *testing.T) {
	f := Feature{ID: "feed-123", TemplateID: TemplateSitrep}
	if f.HideID() != "feed-123" {
		t.Fatalf("expected feed id, got %q", f.HideID())
	}
}

func TestEffectiveTimestamp_PrefersLocalReceipt(t *testing.T) {
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	imported := received.Add(time.Hour)
	packet := received.Add(-48 * time.Hour)

	f := Feature{ReceivedAt: &received, ImportedAt: &imported, PacketAt: &packet}
	ts, ok := f.EffectiveTimestamp()
	if !ok || !ts.Equal(received) {
		t.Fatalf("expected received_at to win, got %v ok=%v", ts, ok)
	}

	f.ReceivedAt = nil
	ts, ok = f.EffectiveTimestamp()
	if !ok || !ts.Equal(imported) {
		t.Fatalf("expected imported_at next, got %v ok=%v", ts, ok)
	}

	f.ImportedAt = nil
	ts, ok = f.EffectiveTimestamp()
	if !ok || !ts.Equal(packet) {
		t.Fatalf("expected packet_at last, got %v ok=%v", ts, ok)
	}

	f.PacketAt = nil
	if _, ok := f.EffectiveTimestamp(); ok {
		t.Fatal("expected no timestamp")
	}
}

func TestGeometryValid(t *testing.T) {
	cases := []struct {
		name string
		g    Geometry
		want bool
	}{
		{"point", Geometry{Type: GeometryPoint, Point: Position{Lat: 1, Lon: 2}}, true},
		{"point nan", Geometry{Type: GeometryPoint, Point: Position{Lat: math.NaN()}}, false},
		{"line", Geometry{Type: GeometryLine, Path: []Position{{}, {Lat: 1}}}, true},
		{"line one vertex", Geometry{Type: GeometryLine, Path: []Position{{}}}, false},
		{"line inf vertex", Geometry{Type: GeometryLine, Path: []Position{{}, {Lon: math.Inf(1)}}}, false},
		{"polygon", Geometry{Type: GeometryPolygon, Ring: []Position{{}, {Lat: 1}, {Lon: 1}}}, true},
		{"polygon short ring", Geometry{Type: GeometryPolygon, Ring: []Position{{}, {Lat: 1}}}, false},
		{"unknown type", Geometry{Type: "Blob"}, false},
	}
	for _, tc := range cases {
		if got := tc.g.Valid(); got != tc.want {
			t.Errorf("%s: Valid() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTemplateID(t *testing.T) {
	if !TemplateSitrep.Known() || TemplateSitrep.String() != "SITREP" {
		t.Fatalf("sitrep: known=%v name=%q", TemplateSitrep.Known(), TemplateSitrep.String())
	}
	if TemplateID(42).Known() {
		t.Fatal("template 42 must be unknown")
	}
	if TemplateID(42).String() != "UNKNOWN" {
		t.Fatalf("unexpected name for unknown template: %q", TemplateID(42).String())
	}
}
