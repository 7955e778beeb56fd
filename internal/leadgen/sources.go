package leadgen

import "time"

// SelectLeadSource picks the owner's source for a run that named no
// industry or location. Among active sources, one scheduled for now's
// weekday wins; otherwise the highest priority wins. Ties go to the least
// used source, then to list order.
func SelectLeadSource(sources []LeadSource, now time.Time) (*LeadSource, bool) {
	today := int(now.Weekday())
	var best, bestToday *LeadSource
	for i := range sources {
		src := &sources[i]
		if !src.Active {
			continue
		}
		if src.DayOfWeek != nil && *src.DayOfWeek == today && better(src, bestToday) {
			bestToday = src
		}
		if better(src, best) {
			best = src
		}
	}
	if bestToday != nil {
		return bestToday, true
	}
	return best, best != nil
}

func better(a, b *LeadSource) bool {
	if b == nil {
		return true
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.UsageCount < b.UsageCount
}
