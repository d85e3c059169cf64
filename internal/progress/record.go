package progress

// ProgressRecord is the sole persisted entity: how far a user got through one
// piece of content, plus the display metadata the continue-watching UI needs.
type ProgressRecord struct {
	Key                ContentKey `json:"key"`
	PositionSeconds    float64    `json:"position_seconds"`
	DurationSeconds    float64    `json:"duration_seconds"`
	Completed          bool       `json:"completed"`
	EngagementObserved bool       `json:"engagement_observed"`
	Title              string     `json:"title,omitempty"`
	PosterRef          string     `json:"poster_ref,omitempty"`
	BackdropRef        string     `json:"backdrop_ref,omitempty"`
	UpdatedAtMs        int64      `json:"updated_at_ms"`
}

// Percent returns watched percentage in [0,100], or 0 while duration is
// still unknown.
func (r ProgressRecord) Percent() float64 {
	if r.DurationSeconds <= 0 {
		return 0
	}
	return r.PositionSeconds / r.DurationSeconds * 100.0
}

// Syncable reports whether the record is eligible for a remote push: a record
// without a known duration carries no computable progress percentage.
func (r ProgressRecord) Syncable() bool { return r.DurationSeconds > 0 }

// Patch is a candidate update submitted through the reconciler. The store
// merges it into the existing record (or creates one) under the stale-write
// and completion-latch rules.
type Patch struct {
	PositionSeconds float64
	DurationSeconds float64
	Completed       bool // latches on; never clears by itself
	ResetCompleted  bool // explicit escape hatch, clears the latch
	Engagement      bool // latches on
	Title           string
	PosterRef       string
	BackdropRef     string
	UpdatedAtMs     int64
	// Authoritative marks a full-state snapshot from the playback surface:
	// it bypasses the stale-write guard and overwrites position/duration
	// regardless of timestamp ordering.
	Authoritative bool
}

// merge applies p to cur (zero-valued when exists is false) and reports
// whether the update was applied. Both store implementations funnel every
// mutation through here so the semantics cannot drift apart.
func merge(cur ProgressRecord, exists bool, key ContentKey, p Patch) (ProgressRecord, bool) {
	if exists && !p.Authoritative && p.UpdatedAtMs <= cur.UpdatedAtMs {
		return cur, false
	}
	out := cur
	out.Key = key

	out.PositionSeconds = clampNonNeg(p.PositionSeconds)
	dur := clampNonNeg(p.DurationSeconds)
	if dur == 0 && !p.Authoritative && cur.DurationSeconds > 0 {
		// The surface briefly reports duration=0 at startup; a known
		// duration is never forgotten by a plain position update.
		dur = cur.DurationSeconds
	}
	out.DurationSeconds = dur
	if out.DurationSeconds > 0 && out.PositionSeconds > out.DurationSeconds {
		out.PositionSeconds = out.DurationSeconds
	}

	out.Completed = cur.Completed || p.Completed
	if p.ResetCompleted {
		out.Completed = false
	}
	out.EngagementObserved = cur.EngagementObserved || p.Engagement

	if p.Title != "" {
		out.Title = p.Title
	}
	if p.PosterRef != "" {
		out.PosterRef = p.PosterRef
	}
	if p.BackdropRef != "" {
		out.BackdropRef = p.BackdropRef
	}
	out.UpdatedAtMs = p.UpdatedAtMs
	return out, true
}

func clampNonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
