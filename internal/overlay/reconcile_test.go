package overlay

import (
	"testing"
)

type fakeHandle struct {
	factory   *fakeFactory
	id        string
	pos       Position
	style     Style
	destroyed bool
}

func (h *fakeHandle) Move(pos Position) {
	h.pos = pos
	h.factory.moves++
}

func (h *fakeHandle) Restyle(style Style) {
	h.style = style
	h.factory.restyles++
}

func (h *fakeHandle) Destroy() {
	h.destroyed = true
	h.factory.destroys++
}

type fakeFactory struct {
	handles  map[string]*fakeHandle
	creates  int
	moves    int
	restyles int
	destroys int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{handles: make(map[string]*fakeHandle)}
}

func (f *fakeFactory) Create(spec MarkerSpec) MarkerHandle {
	h := &fakeHandle{factory: f, id: spec.ID, pos: spec.Pos, style: spec.Style}
	f.handles[spec.ID] = h
	f.creates++
	return h
}

func (f *fakeFactory) reset() {
	f.creates, f.moves, f.restyles, f.destroys = 0, 0, 0, 0
}

func spec(id string, lat, lon float64, style Style) MarkerSpec {
	return MarkerSpec{ID: id, Pos: Position{Lat: lat, Lon: lon}, Style: style}
}

func TestReconcile_CreateMoveRestyleDestroy(t *testing.T) {
	factory := newFakeFactory()
	set := newMarkerSet()
	base := Style{Class: "marker-sitrep", Icon: "report"}

	stats := set.reconcile(factory, []MarkerSpec{
		spec("a", 1, 1, base),
		spec("b", 2, 2, base),
	})
	if stats.Created != 2 || stats.Total() != 2 {
		t.Fatalf("unexpected stats after initial pass: %+v", stats)
	}

	// a moves, b restyles, c appears.
	stale := base
	stale.Stale = true
	stats = set.reconcile(factory, []MarkerSpec{
		spec("a", 1.5, 1, base),
		spec("b", 2, 2, stale),
		spec("c", 3, 3, base),
	})
	if stats.Created != 1 || stats.Moved != 1 || stats.Restyled != 1 || stats.Removed != 0 {
		t.Fatalf("unexpected stats after update pass: %+v", stats)
	}
	if factory.handles["a"].pos.Lat != 1.5 {
		t.Fatalf("move not applied: %+v", factory.handles["a"].pos)
	}
	if !factory.handles["b"].style.Stale {
		t.Fatalf("restyle not applied: %+v", factory.handles["b"].style)
	}

	// a and c vanish.
	stats = set.reconcile(factory, []MarkerSpec{spec("b", 2, 2, stale)})
	if stats.Removed != 2 || stats.Created != 0 {
		t.Fatalf("unexpected stats after removal pass: %+v", stats)
	}
	if !factory.handles["a"].destroyed || !factory.handles["c"].destroyed {
		t.Fatal("expected a and c to be destroyed")
	}
	if factory.handles["b"].destroyed {
		t.Fatal("b must survive in place")
	}
}

func TestReconcile_SecondPassIsIdempotent(t *testing.T) {
	factory := newFakeFactory()
	set := newMarkerSet()
	desired := []MarkerSpec{
		spec("a", 1, 1, Style{Class: "marker-sitrep", Icon: "report"}),
		spec("b", 2, 2, Style{Class: "marker-contact", Icon: "contact"}),
	}

	set.reconcile(factory, desired)
	factory.reset()

	stats := set.reconcile(factory, desired)
	if stats.Total() != 0 {
		t.Fatalf("second pass with unchanged input must be a no-op, got %+v", stats)
	}
	if factory.creates+factory.moves+factory.restyles+factory.destroys != 0 {
		t.Fatalf("factory saw operations on idempotent pass: %+v", factory)
	}
}

func TestReconcile_DuplicateIDsFirstWins(t *testing.T) {
	factory := newFakeFactory()
	set := newMarkerSet()

	stats := set.reconcile(factory, []MarkerSpec{
		spec("dup", 1, 1, Style{Class: "marker-sitrep"}),
		spec("dup", 9, 9, Style{Class: "marker-contact"}),
	})
	if stats.Created != 1 {
		t.Fatalf("expected one create for duplicate ids, got %+v", stats)
	}
	if factory.handles["dup"].pos.Lat != 1 {
		t.Fatalf("first spec must win, got pos %+v", factory.handles["dup"].pos)
	}
}

func TestForget_DropsHandlesWithoutDestroy(t *testing.T) {
	factory := newFakeFactory()
	set := newMarkerSet()
	desired := []MarkerSpec{spec("a", 1, 1, Style{Class: "marker-sitrep"})}

	set.reconcile(factory, desired)
	set.forget()

	if factory.destroys != 0 {
		t.Fatal("forget must not issue destroy operations")
	}

	// The next pass recreates everything from scratch.
	stats := set.reconcile(factory, desired)
	if stats.Created != 1 {
		t.Fatalf("expected recreate after forget, got %+v", stats)
	}
}
