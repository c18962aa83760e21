package engine

// reorder arranges fights by the ids in order. Ids that match no fight are
// ignored and fights not mentioned keep their relative order after the matched
// ones.
//
// Older admin pages sent array positions instead of ids. When no id matched,
// the list covers every fight, and each entry is a valid position, order is
// read as positions. A card whose ids happen to coincide with positions is
// therefore ambiguous; ids win whenever at least one matches.
func reorder(fights []Fight, order []int) []Fight {
	pos := make(map[int]int, len(fights))
	for i, f := range fights {
		pos[f.ID] = i
	}

	used := make([]bool, len(fights))
	out := make([]Fight, 0, len(fights))
	for _, id := range order {
		if i, ok := pos[id]; ok && !used[i] {
			used[i] = true
			out = append(out, fights[i])
		}
	}

	if len(out) == 0 && len(order) == len(fights) && allPositions(order, len(fights)) {
		for _, i := range order {
			if !used[i] {
				used[i] = true
				out = append(out, fights[i])
			}
		}
	}

	for i, f := range fights {
		if !used[i] {
			out = append(out, f)
		}
	}
	return out
}

func allPositions(order []int, n int) bool {
	for _, i := range order {
		if i < 0 || i >= n {
			return false
		}
	}
	return true
}
