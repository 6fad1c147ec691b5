package availability

import (
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// OpenSlots returns instants from, from+step, ... up to and including to that are not taken,
// not covered by any of offHours and not before now.
//
// Callers pass only the off-hours that apply to the provider.
func OpenSlots(from, to time.Time, step time.Duration, taken []time.Time, offHours []model.OffHour, now time.Time) []time.Time {
	if step <= 0 || to.Before(from) {
		return nil
	}

	busy := make(map[int64]struct{}, len(taken))
	for _, t := range taken {
		busy[t.UnixNano()] = struct{}{}
	}

	var slots []time.Time
	for t := from; !t.After(to); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if _, ok := busy[t.UnixNano()]; ok {
			continue
		}
		if coveredByAny(t, offHours) {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}

func coveredByAny(t time.Time, offHours []model.OffHour) bool {
	for _, o := range offHours {
		if o.Covers(t) {
			return true
		}
	}
	return false
}
