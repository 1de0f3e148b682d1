package protocol

// Reasons reported on full frames.
const (
	ResyncInitial     = "initial"
	ResyncShortTrails = "short trails"
	ResyncInterval    = "interval"
)

// resyncPolicy decides when a tick is sent as a full frame rather than a
// delta.
type resyncPolicy struct {
	threshold int
	interval  uint64

	haveFull bool
	lastFull uint64
	forced   string
}

func (r *resyncPolicy) decide(tick uint64, maxTrail int) (bool, string) {
	switch {
	case !r.haveFull:
		return true, ResyncInitial
	case r.forced != "":
		return true, r.forced
	case maxTrail <= r.threshold:
		return true, ResyncShortTrails
	case r.interval > 0 && tick-r.lastFull >= r.interval:
		return true, ResyncInterval
	}
	return false, ""
}

func (r *resyncPolicy) sentFull(tick uint64) {
	r.haveFull = true
	r.lastFull = tick
	r.forced = ""
}

func (r *resyncPolicy) force(reason string) {
	if reason == "" {
		reason = "forced"
	}
	if r.forced == "" {
		r.forced = reason
	}
}
