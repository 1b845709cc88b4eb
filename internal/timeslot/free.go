package timeslot

import "sort"

// FreeSlots returns candidate ranges of the given length inside [open, close)
// that overlap none of the busy ranges. Candidates start every step minutes
// from open. At most limit ranges are returned; limit <= 0 means no cap.
func FreeSlots(open, close Clock, length, step int, busy []Range, limit int) []Range {
	if length <= 0 || open >= close {
		return nil
	}
	if step <= 0 {
		step = length
	}

	sorted := append([]Range(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []Range
	for start := open; start+Clock(length) <= close; start += Clock(step) {
		candidate := Range{Start: start, End: start + Clock(length)}
		if overlapsAny(candidate, sorted) {
			continue
		}
		out = append(out, candidate)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func overlapsAny(r Range, busy []Range) bool {
	for _, b := range busy {
		if b.Start >= r.End {
			return false
		}
		if Overlaps(r, b) {
			return true
		}
	}
	return false
}

// Nearest orders slots by distance of their start from target, earlier slot
// first on ties.
func Nearest(slots []Range, target Clock) []Range {
	out := append([]Range(nil), slots...)
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := distance(out[i].Start, target), distance(out[j].Start, target)
		if di == dj {
			return out[i].Start < out[j].Start
		}
		return di < dj
	})
	return out
}

func distance(a, b Clock) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
