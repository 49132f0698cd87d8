package overlay

import (
	"testing"
	"time"
)

type fakeHidden map[string]bool

func (f fakeHidden) IsHidden(kind HiddenKind, id string) bool {
	return f[string(kind)+"|"+id]
}

func pointFeature(id string, template TemplateID) Feature {
	return Feature{
		ID:         id,
		TemplateID: template,
		Geometry:   Geometry{Type: GeometryPoint, Point: Position{Lat: 1, Lon: 1}},
	}
}

func ids(features []Feature) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		out = append(out, f.ID)
	}
	return out
}

func assertIDs(t *testing.T, got []Feature, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("got %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("got %v, want %v", gotIDs, want)
		}
	}
}

func TestApplyFilters_DisabledShortCircuitsNormalViewOnly(t *testing.T) {
	now := time.Now()
	features := []Feature{pointFeature("a", TemplateSitrep)}
	hidden := fakeHidden{"imported|a": true}

	got := ApplyFilters(features, Filters{Enabled: false}, hidden, ViewNormal, now)
	if len(got) != 0 {
		t.Fatalf("disabled overlay must render nothing, got %v", ids(got))
	}

	// The hidden view still works while the overlay is off.
	got = ApplyFilters(features, Filters{Enabled: false}, hidden, ViewHidden, now)
	assertIDs(t, got, "a")
}

func TestApplyFilters_TypeToggle(t *testing.T) {
	now := time.Now()
	features := []Feature{
		pointFeature("s", TemplateSitrep),
		pointFeature("c", TemplateContact),
		pointFeature("u", TemplateID(99)),
	}
	filters := Filters{
		Enabled:       true,
		DisabledTypes: map[TemplateID]bool{TemplateContact: true},
	}

	// Unrecognized template ids always pass.
	assertIDs(t, ApplyFilters(features, filters, nil, ViewNormal, now), "s", "u")
}

func TestApplyFilters_TrustedOnly(t *testing.T) {
	now := time.Now()
	secure := pointFeature("sec", TemplateSitrep)
	secure.Mode = ModeSecure
	clear := pointFeature("clr", TemplateSitrep)
	clear.Mode = ModeClear

	got := ApplyFilters([]Feature{secure, clear}, Filters{Enabled: true, TrustedOnly: true}, nil, ViewNormal, now)
	assertIDs(t, got, "sec")
}

func TestApplyFilters_RecentWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-8 * 24 * time.Hour)
	fresh := now.Add(-6 * 24 * time.Hour)

	stale := pointFeature("old", TemplateSitrep)
	stale.ReceivedAt = &old
	recent := pointFeature("new", TemplateSitrep)
	recent.ReceivedAt = &fresh
	undated := pointFeature("undated", TemplateSitrep)

	filters := Filters{Enabled: true, RecentOnly: true, RecentWindow: DefaultRecentWindow}
	// Features without a timestamp are never assumed stale.
	got := ApplyFilters([]Feature{stale, recent, undated}, filters, nil, ViewNormal, now)
	assertIDs(t, got, "new", "undated")
}

func TestApplyFilters_PhaseLineLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	line := func(id string) Feature {
		return Feature{
			ID:          id,
			PhaseLineID: id,
			TemplateID:  TemplatePhaseLine,
			Geometry:    Geometry{Type: GeometryLine, Path: []Position{{}, {Lat: 1}}},
		}
	}

	active := line("active")
	closed := line("closed")
	closed.Status = " Closed "
	notYet := line("not-yet")
	notYet.StartAt = &future
	expired := line("expired")
	expired.EndAt = &past
	windowed := line("windowed")
	windowed.StartAt = &past
	windowed.EndAt = &future

	// Lifecycle applies to phase lines only; a closed status on a plain report
	// does not remove it.
	report := pointFeature("report", TemplateSitrep)
	report.Status = "closed"

	got := ApplyFilters(
		[]Feature{active, closed, notYet, expired, windowed, report},
		Filters{Enabled: true}, nil, ViewNormal, now)
	assertIDs(t, got, "active", "windowed", "report")
}

func TestApplyFilters_HiddenViewInversion(t *testing.T) {
	now := time.Now()
	shown := pointFeature("shown", TemplateSitrep)
	concealed := pointFeature("concealed", TemplateSitrep)
	hidden := fakeHidden{"imported|concealed": true}

	features := []Feature{shown, concealed}
	assertIDs(t, ApplyFilters(features, Filters{Enabled: true}, hidden, ViewNormal, now), "shown")
	assertIDs(t, ApplyFilters(features, Filters{Enabled: true}, hidden, ViewHidden, now), "concealed")
}

func TestApplyFilters_NilHiddenLookup(t *testing.T) {
	now := time.Now()
	features := []Feature{pointFeature("a", TemplateSitrep)}

	assertIDs(t, ApplyFilters(features, Filters{Enabled: true}, nil, ViewNormal, now), "a")
	if got := ApplyFilters(features, Filters{Enabled: true}, nil, ViewHidden, now); len(got) != 0 {
		t.Fatalf("hidden view without a store must be empty, got %v", ids(got))
	}
}
