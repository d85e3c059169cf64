package progress

// Engine-wide defaults; overridable through config.
const (
	// DefaultMinWatchSeconds is the minimum engagement threshold: positions
	// below it are treated as accidental taps, not real watching.
	DefaultMinWatchSeconds = 10.0
	// DefaultCompletionThreshold is the watched fraction at which content
	// counts as finished (users rarely watch to the literal last frame).
	DefaultCompletionThreshold = 0.90
	// DefaultMaxRecords caps how many progress records the local store keeps.
	DefaultMaxRecords = 20
)

// Complete reports whether a position within a duration counts as finished.
// Requires a known duration and a position past the engagement threshold, so
// a single tap on a five-second clip does not read as 100% complete.
func Complete(position, duration, minWatch, threshold float64) bool {
	if duration <= 0 || position < minWatch {
		return false
	}
	return position/duration >= threshold
}
