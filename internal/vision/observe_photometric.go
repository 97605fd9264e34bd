package vision

import (
	"math"

	"github.com/otbreview/otbreview/internal/domain"
	"gocv.io/x/gocv"
)

// ObservePhotometric implements component C.1: the two-phase Lab-space
// classifier. cal must already be computed (see CalibratePhaseA/B) from
// the run's first stable, rectified frame; it is reused unchanged for
// every subsequent frame.
func ObservePhotometric(board gocv.Mat, side int, frameIdx int, cal domain.Calibration) domain.PhotometricObs {
	cell := side / 8
	obs := domain.PhotometricObs{Frame: frameIdx}

	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			patch := centralPatch(board, row, col, cell)
			lab := meanLab(patch)

			template := cal.TemplateLightSquareLab
			if (row+col)%2 != 0 {
				template = cal.TemplateDarkSquareLab
			}
			colorDiff := labDiff(lab, template)
			edge := edgePixelRatio(patch)
			patch.Close()

			isPiece := colorDiff > cal.T1 || edge > cal.T2

			if !isPiece {
				obs.Cells[row][col] = domain.Empty
				obs.Confidence[row][col] = confidenceFromMargin(cal.T1-colorDiff, cal.T1)
				continue
			}

			l := lab[0]
			if l >= cal.TLD {
				obs.Cells[row][col] = domain.Light
			} else {
				obs.Cells[row][col] = domain.Dark
			}
			obs.Confidence[row][col] = 0.5 + 0.5*math.Min(1, math.Abs(l-cal.TLD)/50)
		}
	}

	return obs
}

// confidenceFromMargin gives a [0,1] confidence for an empty-cell
// classification proportional to how far color_diff sits below T1.
func confidenceFromMargin(margin, t1 float64) float64 {
	if t1 <= 0 {
		return 0.5
	}
	c := 0.5 + 0.5*math.Min(1, margin/t1)
	return math.Max(0, math.Min(1, c))
}

// CountEmptyCells reports how many cells a PhotometricObs classified as
// Empty, used by the calibration-frame invariant check (spec §8: on the
// calibration frame, empty cells >= 32 - epsilon).
func CountEmptyCells(obs domain.PhotometricObs) int {
	count := 0
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if obs.Cells[r][c] == domain.Empty {
				count++
			}
		}
	}
	return count
}
