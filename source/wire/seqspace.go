package wire

// SeqSpace is the modulus of the wrapping sequence-number space used by
// both the sender and receiver, M = 2^16 (spec section 3/8).
const SeqSpace = 1 << 16

// seqMod reduces a signed distance into [0, SeqSpace).
func seqMod(d int32) uint16 {
	d %= SeqSpace
	if d < 0 {
		d += SeqSpace
	}
	return uint16(d)
}

// Distance returns (a - b) mod SeqSpace, the forward distance from b to
// a around the wrapping sequence space.
func Distance(a, b uint16) uint16 {
	return seqMod(int32(a) - int32(b))
}

// InWindow reports whether s falls within a window of size w starting
// at cursor e: (s - e) mod M < w. w must be <= SeqSpace/2 so this region
// and the "already delivered" region below never overlap (spec 4.3).
func InWindow(s, e uint16, w int) bool {
	return int(Distance(s, e)) < w
}

// AlreadyDelivered reports whether s is behind the delivery cursor e —
// i.e. s != e and 0 < (e - s) mod M < M/2 — meaning s was (or is
// assumed to have been) delivered in a prior in-order drain.
func AlreadyDelivered(s, e uint16) bool {
	if s == e {
		return false
	}
	back := Distance(e, s)
	return back > 0 && int(back) < SeqSpace/2
}

// Next advances a sequence number by one modulo SeqSpace.
func Next(s uint16) uint16 {
	return uint16((uint32(s) + 1) % SeqSpace)
}

// ClosestAhead returns the sequence number in candidates, all assumed
// distinct and each satisfying InWindow(c, e, w), that is numerically
// closest ahead of e under modular arithmetic — i.e. the one minimizing
// Distance(c, e). Returns (0, false) if candidates is empty.
//
// This resolves the open question in spec section 9: the gap-skip rule
// must pick the modular closest-ahead key, not the numerically minimum
// one, or it misbehaves across a sequence-space wrap.
func ClosestAhead(e uint16, candidates []uint16) (uint16, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	best := candidates[0]
	bestDist := Distance(best, e)
	for _, c := range candidates[1:] {
		if d := Distance(c, e); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, true
}
