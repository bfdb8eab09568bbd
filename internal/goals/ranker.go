package goals

import "sort"

// Rank turns peaks into chronologically numbered goal events. When maxGoals is
// positive only the maxGoals most confident peaks are kept, equal confidence
// favouring the earlier peak.
func Rank(peaks []Peak, maxGoals int) []GoalEvent {
	selected := make([]Peak, len(peaks))
	copy(selected, peaks)

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].FrameIndex < selected[j].FrameIndex
	})
	if maxGoals > 0 && len(selected) > maxGoals {
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].Value > selected[j].Value
		})
		selected = selected[:maxGoals]
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].FrameIndex < selected[j].FrameIndex
		})
	}

	events := make([]GoalEvent, len(selected))
	for i, p := range selected {
		events[i] = GoalEvent{
			SequenceNumber: i + 1,
			Timestamp:      p.Timestamp,
			Confidence:     p.Value,
			FrameIndex:     p.FrameIndex,
		}
	}
	return events
}
