// Package engine implements component E, the Engine Annotator: a UCI
// subprocess client, centipawn-loss classification and key-ply
// selection.
package engine

// Classification thresholds in centipawns, from the mover's own
// perspective, per original_source/otbreview/pipeline/classify.py. This
// repo follows classify.py's scheme rather than the alternate
// (20/60/120/200/500) thresholds used elsewhere in the original
// codebase's stockfish_module.py, per the Open Question decision in
// DESIGN.md.
const (
	GoodThresholdCP       = 50
	InaccuracyThresholdCP = 100
	MistakeThresholdCP    = 200
)

// Classification labels.
const (
	ClassBest       = "best"
	ClassGood       = "good"
	ClassInaccuracy = "inaccuracy"
	ClassMistake    = "mistake"
	ClassBlunder    = "blunder"
	ClassBook       = "book"
)

// CPLoss converts two white-positive evaluations (before and after a
// ply) into a centipawn loss from the mover's own perspective: the
// mover of an odd ply is White (wants eval to rise), of an even ply is
// Black (wants eval to fall).
func CPLoss(evalBeforeWhitePerspective, evalAfterWhitePerspective int, ply int) int {
	if ply%2 == 1 {
		return evalBeforeWhitePerspective - evalAfterWhitePerspective
	}
	return evalAfterWhitePerspective - evalBeforeWhitePerspective
}

// Classify applies the classify.py thresholds. isBook short-circuits to
// ClassBook regardless of cpLoss.
func Classify(cpLoss int, isBook bool) string {
	switch {
	case isBook:
		return ClassBook
	case cpLoss <= 0:
		return ClassBest
	case cpLoss <= GoodThresholdCP:
		return ClassGood
	case cpLoss <= InaccuracyThresholdCP:
		return ClassInaccuracy
	case cpLoss <= MistakeThresholdCP:
		return ClassMistake
	default:
		return ClassBlunder
	}
}
