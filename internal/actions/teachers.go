package actions

// teacherNames is the fixed pool the teacher card draws from.
var teacherNames = []string{
	"Maya",
	"Priya",
	"Wei Lin",
	"Sarah",
	"Devi",
	"Hannah",
	"Kavitha",
}

// teacherDrawCount is how many distinct names the teacher card features.
const teacherDrawCount = 3

// drawTeachers picks count distinct names from pool by rejection sampling:
// redraw on collision. Worst case is unbounded in theory but the pool is a
// small fixed list, so in practice a handful of draws suffice.
func drawTeachers(pool []string, count int, intn func(int) int) []string {
	if count > len(pool) {
		count = len(pool)
	}

	picked := make([]string, 0, count)
	used := make(map[int]bool, count)
	for len(picked) < count {
		i := intn(len(pool))
		if used[i] {
			continue
		}
		used[i] = true
		picked = append(picked, pool[i])
	}
	return picked
}
