package overlay

// ResolveLatest collapses phase-line features sharing a phaseLineId down to
// the one with the greatest effective timestamp. At identical timestamps the
// first-seen feature wins, so the result is stable over input order.
// Non-phase-line features are never grouped.
func ResolveLatest(features []Feature) []Feature {
	winners := make(map[string]int)
	for i, f := range features {
		if !f.IsPhaseLine() {
			continue
		}
		prev, ok := winners[f.PhaseLineID]
		if !ok {
			winners[f.PhaseLineID] = i
			continue
		}
		if laterThan(f, features[prev]) {
			winners[f.PhaseLineID] = i
		}
	}

	out := features[:0:0]
	for i, f := range features {
		if f.IsPhaseLine() && winners[f.PhaseLineID] != i {
			continue
		}
		out = append(out, f)
	}
	return out
}

// laterThan reports whether a strictly supersedes b. A feature without a
// timestamp never supersedes one that has one.
func laterThan(a, b Feature) bool {
	ats, aok := a.EffectiveTimestamp()
	bts, bok := b.EffectiveTimestamp()
	if !aok {
		return false
	}
	if !bok {
		return true
	}
	return ats.After(bts)
}
