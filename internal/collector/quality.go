package collector

import "time"

// Quality is a freshness grade of the most recent successful sample,
// independent of whether that sample showed any production.
type Quality struct {
	Text  string
	Class string
}

var (
	QualityLive     = Quality{"LIVE", "dq_ok"}
	QualityStale    = Quality{"STALE", "dq_warn"}
	QualityNoData   = Quality{"NO DATA", "dq_off"}
	QualityOffline  = Quality{"OFFLINE", "dq_off"}
	QualityStarting = Quality{"STARTING", "dq_warn"}
)

// GradeFreshness grades the age of the last successful sample against the
// poll interval. A missing sample timestamp counts as infinitely old.
func GradeFreshness(lastSample *time.Time, now time.Time, interval time.Duration, connected bool) Quality {
	if !connected {
		return QualityOffline
	}
	if lastSample == nil {
		return QualityNoData
	}

	age := now.Sub(*lastSample)
	switch {
	case age < interval*3/2:
		return QualityLive
	case age < interval*3:
		return QualityStale
	default:
		return QualityNoData
	}
}
