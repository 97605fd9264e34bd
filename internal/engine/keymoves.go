package engine

import (
	"sort"

	"github.com/otbreview/otbreview/internal/domain"
)

// maxSwingThresholdCP is the minimum |Δeval| (from analysis.py's white-
// perspective centipawn series) a ply needs to qualify as the "max
// swing" key ply, per keymoves.py.
const maxSwingThresholdCP = 100

// SelectKeyPlies implements component E step 5: last book move, the
// largest eval swing, and every mistake/blunder, deduplicated and
// sorted.
func SelectKeyPlies(moves []domain.MoveRecord) []int {
	if len(moves) < 2 {
		return nil
	}

	set := make(map[int]bool)

	lastBook := -1
	for _, m := range moves {
		if m.Classification == ClassBook {
			lastBook = m.Ply
		}
	}
	if lastBook >= 0 {
		set[lastBook] = true
	}

	maxSwing := 0
	maxSwingPly := -1
	for i := 1; i < len(moves); i++ {
		prev, cur := moves[i-1].EvalCP, moves[i].EvalCP
		if prev == nil || cur == nil {
			continue
		}
		swing := *cur - *prev
		if swing < 0 {
			swing = -swing
		}
		if swing > maxSwing {
			maxSwing = swing
			maxSwingPly = moves[i].Ply
		}
	}
	if maxSwingPly >= 0 && maxSwing > maxSwingThresholdCP {
		set[maxSwingPly] = true
	}

	for _, m := range moves {
		if (m.Classification == ClassMistake || m.Classification == ClassBlunder) && m.Ply > 0 {
			set[m.Ply] = true
		}
	}

	if len(set) == 0 {
		return nil
	}
	keyPlies := make([]int, 0, len(set))
	for ply := range set {
		keyPlies = append(keyPlies, ply)
	}
	sort.Ints(keyPlies)
	return keyPlies
}
