package session

// ValidateRenderRev reports whether a Render envelope carrying rev is
// acceptable given the last-applied revision lastRev (nil before the
// first accepted render). Before any revision has been seen, a render
// establishes a fresh baseline at whatever rev the controller sends, so
// any value is accepted. Once a baseline exists, a render is just
// another point in the same revision sequence and must continue it
// exactly: rev must equal lastRev+1 (wrapping on overflow, matching the
// wire counter). A stale or skipped rev leaves the local view
// undefined relative to the controller's and forces a resync instead of
// a best-effort apply.
func ValidateRenderRev(lastRev *uint64, rev uint64) bool {
	if lastRev == nil {
		return true
	}
	return rev == *lastRev+1
}

// ValidatePatchRev reports whether a Patch envelope carrying rev is
// acceptable given the last-applied revision lastRev. A patch is only
// meaningful as a delta from a known baseline, so one is never accepted
// before any render has been applied. Otherwise rev must be exactly
// lastRev+1 (arithmetic wraps on overflow, matching the wire revision's
// own modular counter): a lower or equal rev is a stale replay, a higher
// one skips a revision the host never saw, and both leave the local
// view-model undefined relative to the controller's — either case
// forces a resync rather than a best-effort apply.
func ValidatePatchRev(lastRev *uint64, rev uint64) bool {
	if lastRev == nil {
		return false
	}
	return rev == *lastRev+1
}
